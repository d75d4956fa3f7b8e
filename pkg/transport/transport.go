package transport

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrymomot/flagsync/pkg/feature"
)

// Mode selects how much a fetch returns.
type Mode string

const (
	// ModeFull fetches and parses the whole configuration.
	ModeFull Mode = "full"
	// ModeTimeOnly only probes the server-side modification time.
	ModeTimeOnly Mode = "time-only"
)

func (m Mode) Valid() bool {
	return m == ModeFull || m == ModeTimeOnly
}

// HeaderUpdatedAt carries the configuration modification time in seconds.
const HeaderUpdatedAt = "Updated-At"

const defaultMaxBodySize int64 = 1 << 20

// Response is the outcome of one fetch. Schema and Raw are nil for ModeTimeOnly.
type Response struct {
	Schema *feature.Schema
	Raw    []byte
	Header http.Header
}

// UpdatedAtMillis returns the modification time carried by the response headers.
func (r *Response) UpdatedAtMillis() (int64, bool) {
	if r == nil {
		return 0, false
	}
	return UpdatedAtMillis(r.Header)
}

// Transport fetches flag configuration from a remote source.
type Transport interface {
	FetchConfig(ctx context.Context, mode Mode) (*Response, error)
}

// Func adapts a function to Transport.
type Func func(ctx context.Context, mode Mode) (*Response, error)

func (f Func) FetchConfig(ctx context.Context, mode Mode) (*Response, error) {
	return f(ctx, mode)
}

// UpdatedAtMillis parses the updated-at header, given in integer or
// fractional seconds, into milliseconds.
func UpdatedAtMillis(h http.Header) (int64, bool) {
	raw := strings.TrimSpace(h.Get(HeaderUpdatedAt))
	if raw == "" {
		return 0, false
	}
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if sec < 0 || sec > math.MaxInt64/1000 {
			return 0, false
		}
		return sec * 1000, true
	}
	sec, err := strconv.ParseFloat(raw, 64)
	if err != nil || sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return 0, false
	}
	return SecondsToMillis(sec), true
}

// SecondsToMillis converts fractional seconds to whole milliseconds.
func SecondsToMillis(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

// UpdatedAtHeader builds a header carrying sec as the modification time.
func UpdatedAtHeader(sec float64) http.Header {
	h := http.Header{}
	h.Set(HeaderUpdatedAt, strconv.FormatFloat(sec, 'f', -1, 64))
	return h
}
