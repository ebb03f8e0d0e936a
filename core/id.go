package core

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ID is a server-assigned record identity. Backends hand out numbers or strings (uuid, slugs);
// both decode into an ID and it always encodes back as a string.
type ID string

func (id ID) String() string { return string(id) }

func (id ID) IsZero() bool { return id == "" }

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// IDOf converts an identity held in a decoded JSON value (string or number) to an ID.
func IDOf(v interface{}) ID {
	switch val := v.(type) {
	case string:
		return ID(val)
	case ID:
		return val
	case float64:
		return ID(strconv.FormatFloat(val, 'f', -1, 64))
	case json.Number:
		return ID(val.String())
	case int:
		return ID(strconv.Itoa(val))
	case int64:
		return ID(strconv.FormatInt(val, 10))
	}
	return ""
}
