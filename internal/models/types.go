package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
)

// StringArray stores a string list in a single text column using the PostgreSQL array
// literal format ({a,b,"c d"}), which also round-trips through SQLite TEXT.
type StringArray []string

// Scan implements the sql.Scanner interface
func (a *StringArray) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return a.parse(string(v))
	case string:
		return a.parse(v)
	default:
		return errors.New("type assertion failed for StringArray")
	}
}

// parse reads the {value1,value2,"value 3"} literal, honouring quotes and backslash escapes.
func (a *StringArray) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "{}" {
		*a = StringArray{}
		return nil
	}
	if !strings.HasPrefix(s, "{") || !strings.HasSuffix(s, "}") {
		return fmt.Errorf("malformed array literal %q", s)
	}
	s = s[1 : len(s)-1]

	var (
		out      StringArray
		cur      strings.Builder
		inQuotes bool
		escaped  bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && inQuotes:
			escaped = true
		case r == '"':
			inQuotes = !inQuotes
		case r == ',' && !inQuotes:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	out = append(out, cur.String())
	*a = out
	return nil
}

// Value implements the driver.Valuer interface
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "{}", nil
	}

	quoted := make([]string, len(a))
	for i, v := range a {
		// Quote values that contain commas, quotes, backslashes, braces or spaces
		if v == "" || strings.ContainsAny(v, `,"\{} `) {
			escaped := strings.ReplaceAll(v, `\`, `\\`)
			escaped = strings.ReplaceAll(escaped, `"`, `\"`)
			quoted[i] = fmt.Sprintf(`"%s"`, escaped)
		} else {
			quoted[i] = v
		}
	}
	return fmt.Sprintf("{%s}", strings.Join(quoted, ",")), nil
}
