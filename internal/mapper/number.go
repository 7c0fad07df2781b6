package mapper

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/sakif/snippethub/internal/apperror"
)

// Number accepts a JSON number or a numeric string. The backend is not
// consistent about which one it sends for ids and counters.
type Number struct {
	raw string
}

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n.raw = s
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	n.raw = num.String()
	return nil
}

func (n Number) String() string { return n.raw }

// Int64 converts n, failing loudly on anything that is not a whole number.
func (n Number) Int64() (int64, error) {
	return ToInt64(n.raw)
}

// NewNumber is used by tests and by callers building wire payloads.
func NewNumber(v string) *Number {
	return &Number{raw: v}
}

var errNotWhole = errors.New("not a whole number")

// ToInt64 converts a decimal string to int64. "42", " 42 " and "42.0" are
// accepted; "", "abc", "4.5", non-finite values and anything outside the
// int64 range fail with a ConversionFailure.
func ToInt64(v string) (int64, error) {
	s := strings.TrimSpace(v)
	i, err := strconv.ParseInt(s, 10, 64)
	switch {
	case err == nil:
		return i, nil
	case errors.Is(err, strconv.ErrRange):
		return 0, apperror.ConversionFailed(v, err)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperror.ConversionFailed(v, err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, apperror.ConversionFailed(v, errNotWhole)
	}
	// float64(math.MaxInt64) rounds up to 2^63, which is already out of range
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, apperror.ConversionFailed(v, strconv.ErrRange)
	}
	return int64(f), nil
}

// toFloat is ToInt64 for values that may be fractional, such as rating.
func toFloat(v string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, apperror.ConversionFailed(v, err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, apperror.ConversionFailed(v, errNotWhole)
	}
	return f, nil
}

// idOf converts a validated id field. Callers have already checked that id is
// non-nil through the `required` tag.
func idOf(id *Number) (int64, error) {
	if id == nil {
		return 0, apperror.ConversionFailed("", errNotWhole)
	}
	return id.Int64()
}
