package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// numeric accepts a JSON number or a quoted number and keeps its exact digits.
// The subgraph encodes BigInt fields as strings while the detail API emits
// bare numbers; both must survive without float rounding.
type numeric string

func (n *numeric) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = numeric(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return fmt.Errorf("numeric field: %w", err)
	}
	*n = numeric(num.String())
	return nil
}

func (n numeric) String() string { return string(n) }

// Int64 parses integral values such as vote ids and unix timestamps.
func (n numeric) Int64() (int64, error) {
	s := string(n)
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("not an integer: %q", s)
	}
	return int64(f), nil
}

// optionalText distinguishes an absent or null string from an empty one.
type optionalText struct {
	Value string
	Set   bool
}

func (o *optionalText) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*o = optionalText{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		// Non-string metadata is treated as missing rather than failing the payload.
		*o = optionalText{}
		return nil
	}
	*o = optionalText{Value: s, Set: true}
	return nil
}
