package symfile

import (
	"fmt"
	"reflect"
	"strconv"
)

// renderValue formats a traced argument or result. Addresses and flag
// words print as hex, strings print quoted, and anything nullable that
// is nil prints as <nil>. Pointers, slices and the like print as their
// address only, never their contents.
func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "<nil>"
	case uint64:
		return fmt.Sprintf("%#x", x)
	case ReadFlags:
		return fmt.Sprintf("%#x", uint32(x))
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case error:
		return strconv.Quote(x.Error())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return "<nil>"
		}
		return fmt.Sprintf("%p", v)
	}
	return fmt.Sprintf("%v", v)
}
