package normalize

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Number accepts a JSON number, a numeric string or null. Upstreams are not
// consistent about which one they send for prices and ids.
type Number struct {
	raw string
}

// NumberOf builds a Number from its textual form, mostly for tests.
func NumberOf(s string) Number {
	return Number{raw: strings.TrimSpace(s)}
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		n.raw = ""
	case data[0] == '"':
		s, err := strconv.Unquote(string(data))
		if err != nil {
			return fmt.Errorf("number: %w", err)
		}
		n.raw = strings.TrimSpace(s)
	case bytes.Equal(data, []byte("true")), bytes.Equal(data, []byte("false")):
		return fmt.Errorf("number: unexpected boolean %s", data)
	default:
		n.raw = string(data)
	}
	return nil
}

// Present reports whether a non-empty value was sent.
func (n Number) Present() bool {
	return n.raw != ""
}

func (n Number) String() string {
	return n.raw
}

// Decimal parses the value; an absent value is zero.
func (n Number) Decimal() (decimal.Decimal, error) {
	if !n.Present() {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %q: %w", n.raw, err)
	}
	return d, nil
}

// Int parses the value and truncates any fractional part; an absent value is zero.
func (n Number) Int() (int64, error) {
	d, err := n.Decimal()
	if err != nil {
		return 0, err
	}
	return d.IntPart(), nil
}

// First returns the first present number, or an absent one.
func First(nums ...Number) Number {
	for _, n := range nums {
		if n.Present() {
			return n
		}
	}
	return Number{}
}
