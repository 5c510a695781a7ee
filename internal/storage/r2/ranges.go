package r2

import (
	"strconv"
	"strings"

	"github.com/localdev/hostd/internal/emuerr"
)

// ByteRange is a resolved, absolute byte range within a value of known size.
type ByteRange struct {
	Start  int64
	Length int64
}

// ParseRanges parses an HTTP Range header the way stdlib's net/http does
// for a single range, but implements spec §4.4's explicit deviation: when
// the header specifies more than one range, the result collapses to the
// full body (the real product never returns 206 Multipart) instead of the
// multipart/byteranges response net/http's ServeContent would produce.
func ParseRanges(header string, size int64) ([]ByteRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, emuerr.NewStorage(emuerr.CodeInvalidRange, "unsupported range unit")
	}
	specs := strings.Split(header[len(prefix):], ",")
	if len(specs) > 1 {
		return nil, nil // collapse to full body
	}

	spec := strings.TrimSpace(specs[0])
	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return nil, emuerr.NewStorage(emuerr.CodeInvalidRange, "malformed range")
	}
	startStr, endStr := spec[:dash], spec[dash+1:]

	var start, length int64
	switch {
	case startStr == "": // suffix range: "-N" => last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, emuerr.NewStorage(emuerr.CodeInvalidRange, "malformed suffix range")
		}
		if n > size {
			n = size
		}
		start = size - n
		length = n
	case endStr == "": // "N-" => from N to end
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 || s >= size {
			return nil, emuerr.NewStorage(emuerr.CodeInvalidRange, "range start out of bounds")
		}
		start = s
		length = size - s
	default:
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 || e < s || s >= size {
			return nil, emuerr.NewStorage(emuerr.CodeInvalidRange, "malformed range bounds")
		}
		if e >= size {
			e = size - 1
		}
		start = s
		length = e - s + 1
	}

	return []ByteRange{{Start: start, Length: length}}, nil
}
