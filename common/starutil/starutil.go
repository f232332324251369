package starutil

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ExtractStringSlice extracts a string slice out of the given starlark List. Throws an error if any list item is not a
// starlark String.
func ExtractStringSlice(list *starlark.List) ([]string, error) {
	if list == nil {
		return nil, nil
	}
	var r []string
	for i := 0; i < list.Len(); i++ {
		s, ok := starlark.AsString(list.Index(i))
		if !ok {
			return nil, fmt.Errorf("got %v, want string", list.Index(i).Type())
		}
		r = append(r, s)
	}
	return r, nil
}

// Struct builds a frozen Starlark struct from Go booleans and strings, for exposing read-only settings to scripts.
func Struct(fields map[string]interface{}) (*starlarkstruct.Struct, error) {
	dict := make(starlark.StringDict, len(fields))
	for k, v := range fields {
		switch tv := v.(type) {
		case bool:
			dict[k] = starlark.Bool(tv)
		case string:
			dict[k] = starlark.String(tv)
		case []string:
			elems := make([]starlark.Value, len(tv))
			for i, s := range tv {
				elems[i] = starlark.String(s)
			}
			dict[k] = starlark.NewList(elems)
		default:
			return nil, fmt.Errorf("field %v: unsupported type %T", k, v)
		}
	}
	s := starlarkstruct.FromStringDict(starlarkstruct.Default, dict)
	s.Freeze()
	return s, nil
}
