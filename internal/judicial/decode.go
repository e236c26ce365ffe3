package judicial

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

func newValidator() *validator.Validate {
	v := validator.New()
	// An unset Timestamp counts as missing for `required`.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		ts, ok := field.Interface().(Timestamp)
		if !ok || ts.IsZero() {
			return nil
		}
		return ts.Time
	}, Timestamp{})
	return v
}

// decodeList decodes a JSON array of T. Keys tagged `payload:"required"` must
// be present and non-null, then the `validate` rules apply to each item.
func decodeList[T any](v *validator.Validate, endpoint string, body []byte) ([]T, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &ValidationError{Endpoint: endpoint, Err: err}
	}
	itemType := reflect.TypeFor[T]()
	items := make([]T, len(raw))
	for i := range raw {
		if err := checkPresence(itemType, raw[i]); err != nil {
			return nil, &ValidationError{Endpoint: endpoint, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		if err := json.Unmarshal(raw[i], &items[i]); err != nil {
			return nil, &ValidationError{Endpoint: endpoint, Err: fmt.Errorf("item %d: %w", i, err)}
		}
		if err := v.Struct(items[i]); err != nil {
			return nil, &ValidationError{Endpoint: endpoint, Err: fmt.Errorf("item %d: %w", i, err)}
		}
	}
	return items, nil
}

// checkPresence walks the JSON object raw against struct type t, descending
// into lists of structs.
func checkPresence(t reflect.Type, raw json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	for i := range t.NumField() {
		field := t.Field(i)
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		value, ok := obj[name]
		if !ok || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			if field.Tag.Get("payload") == "required" {
				return fmt.Errorf("%s is required", name)
			}
			continue
		}
		if field.Type.Kind() != reflect.Slice || field.Type.Elem().Kind() != reflect.Struct {
			continue
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(value, &elems); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		for j, elem := range elems {
			if err := checkPresence(field.Type.Elem(), elem); err != nil {
				return fmt.Errorf("%s[%d]: %w", name, j, err)
			}
		}
	}
	return nil
}
