// Package payload holds the ordered key/value view of a request's submitted
// fields. Order is the order the client sent the fields in.
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

type Field struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

// First returns the first value, which is the one scanned and stored.
func (f Field) First() string {
	if len(f.Values) == 0 {
		return ""
	}
	return f.Values[0]
}

type Fields []Field

func (fs Fields) Get(name string) (string, bool) {
	for _, f := range fs {
		if f.Name == name {
			return f.First(), true
		}
	}
	return "", false
}

// Without returns a copy of fs with every field called name removed.
func (fs Fields) Without(name string) Fields {
	out := make(Fields, 0, len(fs))
	for _, f := range fs {
		if f.Name != name {
			out = append(out, f)
		}
	}
	return out
}

// Flatten collapses every field to its first value.
func (fs Fields) Flatten() map[string]string {
	out := make(map[string]string, len(fs))
	for _, f := range fs {
		if _, seen := out[f.Name]; seen {
			continue
		}
		out[f.Name] = f.First()
	}
	return out
}

// Builder merges repeated names into one field while keeping first-seen order.
type Builder struct {
	fields Fields
	index  map[string]int
}

func (b *Builder) Add(name string, values ...string) {
	if b.index == nil {
		b.index = map[string]int{}
	}
	if i, ok := b.index[name]; ok {
		b.fields[i].Values = append(b.fields[i].Values, values...)
		return
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, Field{Name: name, Values: append([]string(nil), values...)})
}

func (b *Builder) Fields() Fields {
	if b.fields == nil {
		return Fields{}
	}
	return b.fields
}

// ParseQuery parses an urlencoded string. Pairs that fail to unescape are
// kept with their raw text so nothing a client sends is dropped.
func ParseQuery(raw string) Fields {
	var b Builder
	for raw != "" {
		var pair string
		pair, raw, _ = strings.Cut(raw, "&")
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if v, err := url.QueryUnescape(value); err == nil {
			value = v
		}
		b.Add(key, value)
	}
	return b.Fields()
}

// FromValues converts an unordered multi-value map; names are sorted so the
// result is deterministic.
func FromValues(values map[string][]string) Fields {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b Builder
	for _, name := range names {
		b.Add(name, values[name]...)
	}
	return b.Fields()
}

var ErrNotObject = errors.New("json body is not an object")

// ParseJSON reads a top-level JSON object in document order. Scalars become
// their text form, arrays contribute one value per element and nested
// objects are kept as compact JSON.
func ParseJSON(body []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, ErrNotObject
	}

	var b Builder
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected key token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		b.Add(key, jsonValues(raw)...)
	}
	return b.Fields(), nil
}

func jsonValues(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, jsonScalar(item))
		}
		return out
	}
	return []string{jsonScalar(raw)}
}

func jsonScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := bytes.TrimSpace(raw)
	if bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err == nil {
		return buf.String()
	}
	return string(trimmed)
}
