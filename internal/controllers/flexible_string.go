package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexibleString is a roster identifier that clients send either quoted or
// as a bare number: student numbers typed into spreadsheets and QR payloads
// from scanners that decode digits-only cards. Surrounding spaces are dropped.
type FlexibleString string

func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	if fs == nil {
		return fmt.Errorf("FlexibleString: nil receiver")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("FlexibleString: %w", err)
	}
	switch x := v.(type) {
	case nil:
		*fs = ""
	case string:
		*fs = FlexibleString(strings.TrimSpace(x))
	case json.Number:
		*fs = FlexibleString(x.String())
	default:
		return fmt.Errorf("FlexibleString: expected string or number, got %s", bytes.TrimSpace(data))
	}
	return nil
}

func (fs FlexibleString) String() string { return string(fs) }

// Blank reports an absent or whitespace-only value.
func (fs *FlexibleString) Blank() bool { return fs == nil || *fs == "" }
