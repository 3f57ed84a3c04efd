// Package agentflow provides the core execution engine for AI-agent
// workflows: a directed graph of heterogeneous nodes executed over a
// shared, observable state store, with concurrency, retry, and resource
// discipline.
package agentflow

import (
	"encoding/json"
	"fmt"
)

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	// KindJSON holds structured JSON data (null, bool, number, string, array, object).
	KindJSON ValueKind = iota
	// KindFile is a lazy filesystem reference. The engine never reads its contents.
	KindFile
	// KindURL is a lazy URL reference. The engine never fetches it.
	KindURL
)

func (k ValueKind) String() string {
	switch k {
	case KindJSON:
		return "json"
	case KindFile:
		return "file"
	case KindURL:
		return "url"
	default:
		return "unknown"
	}
}

// Value is the tagged value type stored in SharedState. Exactly one of its
// accessors is meaningful depending on Kind. File and URL are lazy handles:
// constructing one never touches disk or network.
type Value struct {
	kind     ValueKind
	json     interface{}
	path     string
	url      string
	mimeType string
}

// JSON wraps a structured JSON value (from json.Unmarshal, or any Go value
// that encoding/json can marshal: nil, bool, float64, string, []any, map[string]any).
func JSON(v interface{}) Value {
	return Value{kind: KindJSON, json: v}
}

// File wraps a filesystem reference with an optional MIME hint.
func File(path, mimeType string) Value {
	return Value{kind: KindFile, path: path, mimeType: mimeType}
}

// URL wraps a URL reference with an optional MIME hint.
func URL(url, mimeType string) Value {
	return Value{kind: KindURL, url: url, mimeType: mimeType}
}

// Kind reports which variant this Value holds.
func (v Value) Kind() ValueKind { return v.kind }

// AsJSON returns the wrapped JSON payload. Only meaningful when Kind() == KindJSON.
func (v Value) AsJSON() interface{} { return v.json }

// Path returns the filesystem path. Only meaningful when Kind() == KindFile.
func (v Value) Path() string { return v.path }

// URLString returns the URL. Only meaningful when Kind() == KindURL.
func (v Value) URLString() string { return v.url }

// MimeType returns the optional MIME hint carried by File/URL values.
func (v Value) MimeType() string { return v.mimeType }

// Render produces the human-readable string form used by template
// substitution and diagnostic reports: strings render as-is, numbers/bools
// use native stringification, objects/arrays render as compact JSON, and
// File/URL values render as a label that never exposes more than the path
// or URL and MIME hint.
func (v Value) Render() string {
	switch v.kind {
	case KindFile:
		if v.mimeType != "" {
			return fmt.Sprintf("<file: %s (%s)>", v.path, v.mimeType)
		}
		return fmt.Sprintf("<file: %s>", v.path)
	case KindURL:
		if v.mimeType != "" {
			return fmt.Sprintf("<url: %s (%s)>", v.url, v.mimeType)
		}
		return fmt.Sprintf("<url: %s>", v.url)
	default:
		return renderJSON(v.json)
	}
}

func renderJSON(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	case float64, int, int64:
		return fmt.Sprintf("%v", t)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ByteSize returns an estimate of the value's memory footprint used for
// ResourceLimits accounting. File/URL values are cheap (the handle, not the
// referenced content); JSON values are measured by their marshaled size.
func (v Value) ByteSize() int {
	switch v.kind {
	case KindFile:
		return len(v.path) + len(v.mimeType) + 16
	case KindURL:
		return len(v.url) + len(v.mimeType) + 16
	default:
		b, err := json.Marshal(v.json)
		if err != nil {
			return len(fmt.Sprintf("%v", v.json))
		}
		return len(b)
	}
}

// lookupPath descends a dotted path through decoded JSON structure
// (map[string]interface{} / []interface{}), returning the leaf value and
// whether the path resolved.
func lookupPath(root interface{}, segments []string) (interface{}, bool) {
	cur := root
	for _, seg := range segments {
		switch node := cur.(type) {
		case map[string]interface{}:
			v, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []interface{}:
			idx, err := parseIndex(seg)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, false
			}
			cur = node[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func parseIndex(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty index")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("not an index: %q", s)
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
