package models

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// FlexString accepts both JSON strings and numbers. Bundle producers disagree
// on whether version_code and the sdk levels are quoted.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the raw value
func (f FlexString) String() string {
	return string(f)
}

// Int returns the numeric value, or 0 when it is not a number
func (f FlexString) Int() int64 {
	n, err := strconv.ParseInt(string(f), 10, 64)
	if err != nil {
		return 0
	}
	return n
}
