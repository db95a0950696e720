package models

import (
	"reflect"
	"strings"
)

// sanitize trims string fields of the struct v points to. String slices are
// trimmed element-wise and blank elements are dropped.
func sanitize(v any) {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Pointer || val.IsNil() || val.Elem().Kind() != reflect.Struct {
		return
	}
	val = val.Elem()

	for i := range val.NumField() {
		field := val.Field(i)
		if !field.CanSet() {
			continue
		}
		switch {
		case field.Kind() == reflect.String:
			field.SetString(strings.TrimSpace(field.String()))
		case field.Kind() == reflect.Slice && field.Type().Elem().Kind() == reflect.String:
			kept := reflect.MakeSlice(field.Type(), 0, field.Len())
			for j := range field.Len() {
				s := strings.TrimSpace(field.Index(j).String())
				if s != "" {
					kept = reflect.Append(kept, reflect.ValueOf(s).Convert(field.Type().Elem()))
				}
			}
			field.Set(kept)
		}
	}
}
