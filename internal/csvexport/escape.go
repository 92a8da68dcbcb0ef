package csvexport

import (
	"fmt"
	"reflect"
	"strings"
)

// Escape renders one CSV field. Integer or string zero becomes "0", any other
// empty value becomes "". Double quotes are doubled and the field is quoted
// when it contains a comma, a newline or a double quote.
func Escape(value any) string {
	s, ok := text(value)
	if !ok {
		return ""
	}

	s = strings.ReplaceAll(s, `"`, `""`)
	if strings.ContainsAny(s, ",\n\"") {
		s = `"` + s + `"`
	}
	return s
}

// text converts value to its field text. It reports false for values that
// render as an empty field.
func text(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, v != ""
	case int:
		return fmt.Sprint(v), true
	case int64:
		return fmt.Sprint(v), true
	case bool:
		if v {
			return "1", true
		}
		return "", false
	case fmt.Stringer:
		s := v.String()
		return s, s != ""
	}

	rv := reflect.ValueOf(value)
	if rv.IsZero() {
		return "", false
	}
	return fmt.Sprint(value), true
}
