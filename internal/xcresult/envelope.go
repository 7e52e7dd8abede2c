package xcresult

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// xcresulttool wraps every scalar as {"_type":{"_name":"Bool"},"_value":"true"}
// and every array as {"_type":{"_name":"Array"},"_values":[...]}. Scalars are
// always transported as JSON strings regardless of their declared type.

type typeName struct {
	Name string `json:"_name"`
}

// Value unwraps one {"_type", "_value"} envelope into a T.
type Value[T any] struct {
	Type  string
	V     T
	Valid bool
}

func (v *Value[T]) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return nil
	}
	var env struct {
		Type  typeName        `json:"_type"`
		Value json.RawMessage `json:"_value"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("unwrap value: %w", err)
	}
	v.Type = env.Type.Name
	if len(env.Value) == 0 || isNull(env.Value) {
		return nil
	}
	if err := decodeScalar(env.Value, &v.V); err != nil {
		return fmt.Errorf("decode %s value: %w", env.Type.Name, err)
	}
	v.Valid = true
	return nil
}

// Values unwraps one {"_type", "_values"} envelope into a []T.
type Values[T any] struct {
	Type  string
	Items []T
}

func (v *Values[T]) UnmarshalJSON(b []byte) error {
	if isNull(b) {
		return nil
	}
	var env struct {
		Type   typeName          `json:"_type"`
		Values []json.RawMessage `json:"_values"`
	}
	if err := json.Unmarshal(b, &env); err != nil {
		return fmt.Errorf("unwrap values: %w", err)
	}
	v.Type = env.Type.Name
	v.Items = make([]T, 0, len(env.Values))
	for i, raw := range env.Values {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return fmt.Errorf("decode %s element %d: %w", env.Type.Name, i, err)
		}
		v.Items = append(v.Items, item)
	}
	return nil
}

func decodeScalar[T any](raw json.RawMessage, dst *T) error {
	err := json.Unmarshal(raw, dst)
	if err == nil {
		return nil
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return err
	}
	return json.Unmarshal([]byte(s), dst)
}

func isNull(b []byte) bool {
	return bytes.Equal(bytes.TrimSpace(b), []byte("null"))
}
