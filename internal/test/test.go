// Package test compares frame bodies and option structs in tests.
package test

import (
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Equal reports whether x and y hold the same values. Unexported fields
// are compared and nil and empty maps or slices are equal.
func Equal(x, y any) bool {
	return cmp.Equal(x, y, compareOpts(x, y)...)
}

// Diff returns a (-x +y) report of the differences.
func Diff(x, y any) string {
	return cmp.Diff(x, y, compareOpts(x, y)...)
}

// RequireEqual fails the test with a diff when want and got differ.
func RequireEqual(t testing.TB, want, got any) {
	t.Helper()
	if !Equal(want, got) {
		t.Fatalf("mismatch (-want +got):\n%s", Diff(want, got))
	}
}

func compareOpts(x, y any) cmp.Options {
	return cmp.Options{
		allowUnexported(x, y),
		cmpopts.EquateEmpty(),
		cmpopts.EquateNaNs(),
	}
}

// from https://github.com/google/go-cmp/issues/40
func allowUnexported(vs ...any) cmp.Option {
	seen := make(map[reflect.Type]struct{})
	for _, v := range vs {
		collectStructs(reflect.ValueOf(v), seen)
	}
	types := make([]any, 0, len(seen))
	for t := range seen {
		types = append(types, reflect.New(t).Elem().Interface())
	}
	return cmp.AllowUnexported(types...)
}

func collectStructs(v reflect.Value, seen map[reflect.Type]struct{}) {
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface:
		if !v.IsNil() {
			collectStructs(v.Elem(), seen)
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			collectStructs(v.Index(i), seen)
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			collectStructs(iter.Value(), seen)
		}
	case reflect.Struct:
		seen[v.Type()] = struct{}{}
		for i := 0; i < v.NumField(); i++ {
			collectStructs(v.Field(i), seen)
		}
	}
}
