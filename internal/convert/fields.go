// Package convert maps domain models to and from google.protobuf.Struct
// message bodies used on the wire.
package convert

import (
	"fmt"
	"math"

	"github.com/and161185/rootine/internal/errs"
	"google.golang.org/protobuf/types/known/structpb"
)

// fields reads typed optional values from a Struct. A missing key and an
// explicit null both read as "not provided".
type fields map[string]*structpb.Value

func fieldsOf(s *structpb.Struct) fields {
	if s == nil {
		return fields{}
	}
	return s.GetFields()
}

func badField(key, want string) error {
	return fmt.Errorf("%w: field %q must be %s", errs.ErrInvalidArgument, key, want)
}

func (f fields) present(key string) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return false
	}
	_, null := v.GetKind().(*structpb.Value_NullValue)
	return !null
}

func (f fields) str(key string) (*string, error) {
	if !f.present(key) {
		return nil, nil
	}
	s, ok := f[key].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, badField(key, "a string")
	}
	return &s.StringValue, nil
}

func (f fields) boolean(key string) (*bool, error) {
	if !f.present(key) {
		return nil, nil
	}
	b, ok := f[key].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, badField(key, "a boolean")
	}
	return &b.BoolValue, nil
}

// integer reports the exact integer v holds; JSON numbers above 2^53 are not exact.
func integer(v *structpb.Value) (int64, bool) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, false
	}
	return int64(n.NumberValue), true
}

func (f fields) int64(key string) (*int64, error) {
	if !f.present(key) {
		return nil, nil
	}
	v, ok := integer(f[key])
	if !ok {
		return nil, badField(key, "an integer")
	}
	return &v, nil
}

func (f fields) int32(key string) (*int32, error) {
	v, err := f.int64(key)
	if err != nil || v == nil {
		return nil, err
	}
	if *v < math.MinInt32 || *v > math.MaxInt32 {
		return nil, badField(key, "a 32-bit integer")
	}
	n := int32(*v)
	return &n, nil
}

func (f fields) list(key string) ([]*structpb.Value, bool, error) {
	if !f.present(key) {
		return nil, false, nil
	}
	l, ok := f[key].GetKind().(*structpb.Value_ListValue)
	if !ok {
		return nil, false, badField(key, "a list")
	}
	return l.ListValue.GetValues(), true, nil
}

// reject fails if any of keys is present.
func (f fields) reject(keys ...string) error {
	for _, k := range keys {
		if _, ok := f[k]; ok {
			return fmt.Errorf("%w: field %q cannot be set here", errs.ErrInvalidArgument, k)
		}
	}
	return nil
}

// ID reads a required positive integer id.
func ID(s *structpb.Struct, key string) (int64, error) {
	v, err := fieldsOf(s).int64(key)
	if err != nil {
		return 0, err
	}
	if v == nil || *v <= 0 {
		return 0, fmt.Errorf("%w: %q is required", errs.ErrInvalidArgument, key)
	}
	return *v, nil
}

// String reads a string field, "" when absent.
func String(s *structpb.Struct, key string) (string, error) {
	v, err := fieldsOf(s).str(key)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

// IDs reads a list of integer ids.
func IDs(s *structpb.Struct, key string) ([]int64, error) {
	vals, _, err := fieldsOf(s).list(key)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		id, ok := integer(v)
		if !ok || id <= 0 {
			return nil, badField(key, "a list of ids")
		}
		out = append(out, id)
	}
	return out, nil
}
