package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/localdev/hostd/internal/emuerr"
)

// singleton validator instance, following the same thread-safe
// once-initialized pattern used to validate request/config structs
// elsewhere in the corpus this emulator is built from.
var (
	structValidate     *validator.Validate
	structValidateOnce sync.Once
)

func structValidator() *validator.Validate {
	structValidateOnce.Do(func() {
		structValidate = validator.New(validator.WithRequiredStructEnabled())
	})
	return structValidate
}

// Validate checks a merged Options record against the struct tags declared
// in types.go: non-empty host, an in-range port, a recognized log
// level/format, and named workers/services. It runs as the last step of
// Load so a malformed layered result fails fast instead of surfacing as a
// confusing error deeper in startup.
func Validate(opts *Options) error {
	if err := structValidator().Struct(opts); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return emuerr.New(emuerr.KindConfig, emuerr.CodeSchemaInvalid,
				fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return emuerr.New(emuerr.KindConfig, emuerr.CodeSchemaInvalid, err.Error())
	}
	return nil
}

// ValidateListLimit enforces the page-size bound shared by every paginated
// List call (spec §4.4 KV/R2): 1..1000. limit <= 0 means "unspecified" and
// is left to the caller's own default rather than rejected.
func ValidateListLimit(limit int) error {
	if limit <= 0 {
		return nil
	}
	if err := structValidator().Var(limit, "min=1,max=1000"); err != nil {
		return emuerr.NewStorage(emuerr.CodeInvalidMaxKeys, fmt.Sprintf("limit %d out of bounds (1..1000)", limit))
	}
	return nil
}

// ValidCursor reports whether cursor is a well-formed base64url token. An
// empty cursor is valid (it means "start from the beginning"). A
// malformed cursor is deliberately not wired to an error here: callers use
// this to short-circuit straight to an empty page, matching "invalid
// cursors return empty" (spec §4.4 KV/R2 List).
func ValidCursor(cursor string) bool {
	if cursor == "" {
		return true
	}
	return structValidator().Var(cursor, "base64url") == nil
}
