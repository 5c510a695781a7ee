package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/localdev/hostd/internal/emuerr"
)

const dateLayout = "2006-01-02"

// Now is overridable in tests; production code should never need to change
// it since the real clock is what "today" means in spec §4.1.
var Now = time.Now

// ValidateCompatibilityDate implements spec §4.1's compatibility-date rule:
// fails with ERR_FUTURE_COMPATIBILITY_DATE iff date > today; otherwise
// returns min(date, maxSupported) and whether a downgrade warning should be
// emitted.
func ValidateCompatibilityDate(date, maxSupported string) (effective string, downgraded bool, err error) {
	d, perr := time.Parse(dateLayout, date)
	if perr != nil {
		return "", false, emuerr.New(emuerr.KindConfig, emuerr.CodeSchemaInvalid, "compatibility_date must be YYYY-MM-DD: "+perr.Error())
	}

	today := truncateToDay(Now())
	if d.After(today) {
		return "", false, emuerr.New(emuerr.KindConfig, emuerr.CodeFutureCompatibilityDate,
			fmt.Sprintf("compatibility_date %s is after today (%s)", date, today.Format(dateLayout)))
	}

	max, merr := time.Parse(dateLayout, maxSupported)
	if merr != nil {
		return date, false, nil
	}

	if d.After(max) {
		return maxSupported, true, nil
	}
	return date, false, nil
}

func truncateToDay(t time.Time) time.Time {
	y, m, day := t.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// ParsePersist implements spec §3's persistence field grammar: `true` (use a
// conventional root), `false`/absent (memory), or a path/URL (memory:,
// file:); any other URL scheme fails fast.
func ParsePersist(raw string, conventionalRoot string) (Persist, error) {
	switch raw {
	case "":
		return Persist{Kind: PersistMemory}, nil
	case "true":
		return Persist{Kind: PersistDefaultRoot, Path: conventionalRoot}, nil
	case "false":
		return Persist{Kind: PersistMemory}, nil
	}

	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "memory:") && !strings.HasPrefix(raw, "file:") {
		// Bare filesystem path.
		return Persist{Kind: PersistPath, Path: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Persist{}, emuerr.New(emuerr.KindConfig, emuerr.CodeUnknownPersistScheme, "invalid persistence URL: "+raw)
	}

	switch u.Scheme {
	case "memory":
		return Persist{Kind: PersistMemory}, nil
	case "file":
		p := u.Path
		if p == "" {
			p = u.Opaque
		}
		return Persist{Kind: PersistPath, Path: p}, nil
	default:
		return Persist{}, emuerr.New(emuerr.KindConfig, emuerr.CodeUnknownPersistScheme,
			fmt.Sprintf("unknown persistence scheme %q", u.Scheme))
	}
}
