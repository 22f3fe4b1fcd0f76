package querycache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Key is an ordered tuple [resource, ids...]. Equal keys share one cache slot.
type Key []any

// NewKey builds a key from a resource name and its identifiers.
func NewKey(resource string, ids ...any) Key {
	k := make(Key, 0, len(ids)+1)
	k = append(k, resource)
	return append(k, ids...)
}

// Resource returns the first element, the logical resource name.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	s, _ := k[0].(string)
	return s
}

// Enabled reports whether every identifier is present. A disabled key is never fetched.
func (k Key) Enabled() bool {
	if len(k) == 0 {
		return false
	}
	for _, p := range k {
		if isAbsent(p) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p is a leading sub-tuple of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if part(p[i]) != part(k[i]) {
			return false
		}
	}
	return true
}

// String is the canonical form used as the map and singleflight key.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = part(p)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func part(p any) string {
	if isNilRef(p) {
		return "null"
	}
	switch v := p.(type) {
	case string:
		b, _ := json.Marshal(v)
		return string(b)
	case fmt.Stringer:
		b, _ := json.Marshal(v.String())
		return string(b)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(b)
}

func isNilRef(p any) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func isAbsent(p any) bool {
	if isNilRef(p) {
		return true
	}
	if s, ok := p.(fmt.Stringer); ok {
		return strings.TrimSpace(s.String()) == ""
	}
	if v := reflect.ValueOf(p); v.Kind() == reflect.String {
		return strings.TrimSpace(v.String()) == ""
	}
	return false
}
