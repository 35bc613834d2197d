// Copyright 2023 Stock Parfait

// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at

//     http://www.apache.org/licenses/LICENSE-2.0

// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package envelope initializes typed structs from generic parsed JSON, as
// returned by the SDMX-JSON API. It differs from a plain encoding/json
// unmarshal in two ways dictated by the upstream format:
//
// - The API collapses single-element lists into bare objects. Slice fields
//   therefore accept either a JSON array or a single value ("singleton
//   promotion").
//
// - Envelopes carry a large and unstable set of namespace attributes
//   ("@xmlns", "@xml:lang" and friends), so unknown fields are ignored.
//
// Struct tags: `json:"field_name" required:"true" default:"value"`. The
// `json:` tag is compatible with the encoding/json package, which allows the
// same structs to be marshaled back into envelope-compatible JSON.
package envelope

import (
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/stockparfait/errors"
)

// Message is a typed representation of a JSON envelope node, typically
// implemented by a struct pointer whose InitMessage calls Init:
//
//   type Name struct {
//     Text string `json:"#text" required:"true"`
//   }
//
//   func (n *Name) InitMessage(js any) error { return envelope.Init(n, js) }
type Message interface {
	InitMessage(js any) error
}

// rMessage is the reflected Message interface type, for Implements checks.
var rMessage = reflect.TypeOf((*Message)(nil)).Elem()

// List normalizes a singleton-or-array JSON node to a slice. A nil node
// yields a nil slice. It is useful for manual traversal of envelope parts
// whose element shape is too dynamic for a typed Message.
func List(js any) []any {
	if js == nil {
		return nil
	}
	if l, ok := js.([]any); ok {
		return l
	}
	return []any{js}
}

func initMessage(jv any, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	if t.Kind() != reflect.Ptr {
		return Nil, errors.Reason(
			"type %s implements Message but is not a pointer", t.Name())
	}
	ptr := reflect.New(t.Elem())
	if err := ptr.Interface().(Message).InitMessage(jv); err != nil {
		return Nil, errors.Annotate(err, "failed to init %s", t.Elem().Name())
	}
	return ptr, nil
}

// convert transforms a raw JSON value into the target type. Types
// implementing Message (directly or through their pointer) are initialized
// with InitMessage; slices promote a non-array value to a one-element list.
func convert(jv any, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	if t.Implements(rMessage) {
		return initMessage(jv, t)
	}
	if reflect.PtrTo(t).Implements(rMessage) {
		ptr, err := initMessage(jv, reflect.PtrTo(t))
		if err != nil {
			return Nil, err
		}
		return reflect.Indirect(ptr), nil
	}
	switch t.Kind() {
	case reflect.Ptr:
		v, err := convert(jv, t.Elem())
		if err != nil {
			return Nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil

	case reflect.Bool:
		v, ok := jv.(bool)
		if !ok {
			return Nil, errors.Reason("not a bool value: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.Int:
		v, ok := jv.(float64)
		if !ok {
			return Nil, errors.Reason("not a numeric value: %v", jv)
		}
		return reflect.ValueOf(int(v)), nil

	case reflect.Float64:
		v, ok := jv.(float64)
		if !ok {
			return Nil, errors.Reason("not a numeric value: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.String:
		v, ok := jv.(string)
		if !ok {
			return Nil, errors.Reason("not a string value: %v", jv)
		}
		return reflect.ValueOf(v), nil

	case reflect.Slice:
		l := List(jv)
		res := reflect.MakeSlice(t, len(l), len(l))
		for i, e := range l {
			el, err := convert(e, t.Elem())
			if err != nil {
				return Nil, errors.Annotate(err, "element %d", i)
			}
			res.Index(i).Set(el)
		}
		return res, nil

	default:
		return Nil, errors.Reason("unsupported field type: %s", t.Name())
	}
}

// fromString parses a default value from a struct tag into the target type.
func fromString(s string, t reflect.Type) (reflect.Value, error) {
	var Nil reflect.Value
	switch t.Kind() {
	case reflect.Ptr:
		v, err := fromString(s, t.Elem())
		if err != nil {
			return Nil, err
		}
		ptr := reflect.New(t.Elem())
		ptr.Elem().Set(v)
		return ptr, nil
	case reflect.Bool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid bool value: %s", s)
		}
		return reflect.ValueOf(v), nil
	case reflect.Int:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid int value: %s", s)
		}
		return reflect.ValueOf(int(v)), nil
	case reflect.Float64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Nil, errors.Annotate(err, "invalid float64 value: %s", s)
		}
		return reflect.ValueOf(v), nil
	case reflect.String:
		return reflect.ValueOf(s), nil
	}
	return Nil, errors.Reason("type %s cannot have a default value", t.Name())
}

// jsonName extracts the JSON key of a struct field, compatible with the
// encoding/json tag format. The second value is false for skipped fields.
func jsonName(f reflect.StructField) (string, bool) {
	first, _ := utf8.DecodeRuneInString(f.Name)
	if !unicode.IsUpper(first) {
		return "", false
	}
	name := f.Name
	if tag := f.Tag.Get("json"); tag != "" {
		parts := strings.Split(tag, ",")
		if parts[0] == "-" {
			return "", false
		}
		if parts[0] != "" {
			name = parts[0]
		}
	}
	return name, true
}

// Init populates a Message struct from a generic parsed JSON value. It is
// the generic implementation behind most InitMessage methods. The value must
// be a JSON object; fields absent from it are set to their `default:` tag
// value or left zero, and all `required:` fields missing from the object are
// reported in a single error. Unrecognized object keys are ignored.
func Init(m Message, js any) error {
	rt := reflect.TypeOf(m)
	if rt.Kind() != reflect.Ptr || rt.Elem().Kind() != reflect.Struct {
		return errors.Reason(
			"expected a struct pointer, but got %s", rt.String())
	}
	if js == nil {
		return errors.Reason("JSON value is nil")
	}
	jsMap, ok := js.(map[string]any)
	if !ok {
		return errors.Reason("JSON value is not an object: %v", js)
	}

	rt = rt.Elem()
	rv := reflect.ValueOf(m).Elem()
	var missing []string
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		name, ok := jsonName(f)
		if !ok {
			continue
		}
		fv := rv.FieldByName(f.Name)
		if jv, ok := jsMap[name]; ok && jv != nil {
			v, err := convert(jv, f.Type)
			if err != nil {
				return errors.Annotate(err, "failed to assign field %s of %s",
					f.Name, rt.Name())
			}
			fv.Set(v)
			continue
		}
		if f.Tag.Get("required") == "true" {
			missing = append(missing, name)
			continue
		}
		if d, ok := f.Tag.Lookup("default"); ok {
			v, err := fromString(d, f.Type)
			if err != nil {
				return errors.Annotate(err, "bad default value for field %s of %s",
					f.Name, rt.Name())
			}
			fv.Set(v)
		}
	}
	if len(missing) != 0 {
		return errors.Reason("%s: missing required fields: %s",
			rt.Name(), strings.Join(missing, ", "))
	}
	return nil
}
