package main

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parsePgArrayLiteral splits a one-dimensional PostgreSQL array literal such
// as {a,"b c",NULL} into its elements. Unquoted NULL yields a nil element.
func parsePgArrayLiteral(s string) ([]*string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, fmt.Errorf("invalid array literal %q", s)
	}
	inside := s[1 : len(s)-1]
	if strings.TrimSpace(inside) == "" {
		return []*string{}, nil
	}

	var values []*string
	i := 0
	for i <= len(inside) {
		for i < len(inside) && inside[i] == ' ' {
			i++
		}
		if i < len(inside) && inside[i] == '{' {
			return nil, fmt.Errorf("multi-dimensional array literal %q is not supported", s)
		}

		var b strings.Builder
		quoted := false
		if i < len(inside) && inside[i] == '"' {
			quoted = true
			i++
			closed := false
			for i < len(inside) {
				c := inside[i]
				if c == '\\' {
					if i+1 >= len(inside) {
						return nil, fmt.Errorf("invalid escape in %q", s)
					}
					b.WriteByte(inside[i+1])
					i += 2
					continue
				}
				if c == '"' {
					i++
					closed = true
					break
				}
				b.WriteByte(c)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated quoted element in %q", s)
			}
			for i < len(inside) && inside[i] == ' ' {
				i++
			}
		} else {
			for i < len(inside) && inside[i] != ',' {
				b.WriteByte(inside[i])
				i++
			}
		}

		elem := b.String()
		if !quoted {
			elem = strings.TrimSpace(elem)
		}
		if !quoted && strings.EqualFold(elem, "NULL") {
			values = append(values, nil)
		} else {
			values = append(values, &elem)
		}

		if i >= len(inside) {
			break
		}
		if inside[i] != ',' {
			return nil, fmt.Errorf("invalid array literal %q", s)
		}
		i++
	}
	return values, nil
}

// coerceArray renders an array column as JSON. Arrays decoded by the driver
// arrive as JSON already; arrays of types the driver does not know (enum
// arrays, for example) arrive as their text literal.
func coerceArray(v Value) (Value, error) {
	if v.Kind == KindText && strings.HasPrefix(strings.TrimSpace(v.Text), "{") {
		elems, err := parsePgArrayLiteral(v.Text)
		if err != nil {
			return Value{}, err
		}
		b, err := json.Marshal(elems)
		if err != nil {
			return Value{}, fmt.Errorf("encode array: %w", err)
		}
		return JSONValue(string(b)), nil
	}
	return coerceJSON(v)
}
