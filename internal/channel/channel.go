// Package channel turns a decoded source payload into a normalized, ordered
// list of playlist entries. The payload comes in two shapes: a list of channel
// objects, or an object keyed by channel id. Both resolve to []Entry here so
// later stages never branch on shape.
package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DefaultName is used for list entries that carry no name.
const DefaultName = "Unknown Channel"

// Entry is one channel candidate. All fields are optional except URL.
type Entry struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	URL    string `json:"url"`
	Group  string `json:"group,omitempty"`
	Logo   string `json:"logo,omitempty"`
	KeyID  string `json:"kid,omitempty"`
	Key    string `json:"key,omitempty"`
	Cookie string `json:"cookie,omitempty"`
}

// HasDRM reports whether both clear-key fields are present.
func (e Entry) HasDRM() bool {
	return e.KeyID != "" && e.Key != ""
}

// Shape is the root layout of the payload.
type Shape string

const (
	ShapeList  Shape = "list"
	ShapeKeyed Shape = "keyed"
)

// Skip reasons.
const (
	ReasonNotObject  = "not_object"
	ReasonMissingURL = "missing_url"
	ReasonMissingID  = "missing_id" // keyed payload with a blank key
)

// Skip records one payload element that did not become an Entry.
// Index is the position in the list (or in key order for keyed payloads).
type Skip struct {
	Index  int
	Key    string // keyed payloads only
	Reason string
}

// Result is the normalized payload.
type Result struct {
	Shape   Shape
	Entries []Entry
	Skipped []Skip
}

// SchemaError means the payload root is neither a list nor an object.
type SchemaError struct {
	Root string // JSON kind found at the root
	Err  error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("schema: payload root must be a list or an object: %v", e.Err)
	}
	return fmt.Sprintf("schema: payload root must be a list or an object, got %s", e.Root)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// list-shape field aliases, in precedence order
var (
	nameKeys   = []string{"channel_name", "name", "tvg-name"}
	urlKeys    = []string{"channel_url", "url"}
	idKeys     = []string{"channel_id", "tvg-id"}
	groupKeys  = []string{"channel_genre", "group-title"}
	logoKeys   = []string{"channel_logo", "logo", "tvg-logo"}
	keyIDKeys  = []string{"keyId", "kid"}
	keyKeys    = []string{"key"}
	cookieKeys = []string{"cookie"}
)

// Normalize decodes raw (a complete JSON document) into entries, preserving
// document order. Elements that are not objects, and entries without a URL, are
// reported in Result.Skipped rather than failing the whole payload.
func Normalize(raw []byte) (Result, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return Result{}, &SchemaError{Root: "invalid", Err: err}
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return Result{}, &SchemaError{Root: kindOf(tok)}
	}
	switch delim {
	case '[':
		return normalizeList(dec)
	case '{':
		return normalizeKeyed(dec)
	}
	return Result{}, &SchemaError{Root: string(delim)}
}

func normalizeList(dec *json.Decoder) (Result, error) {
	res := Result{Shape: ShapeList}
	for i := 0; dec.More(); i++ {
		var elem any
		if err := dec.Decode(&elem); err != nil {
			return Result{}, &SchemaError{Root: "list", Err: err}
		}
		obj, ok := elem.(map[string]any)
		if !ok {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: ReasonNotObject})
			continue
		}
		e := Entry{
			ID:     first(obj, idKeys),
			Name:   first(obj, nameKeys),
			URL:    first(obj, urlKeys),
			Group:  first(obj, groupKeys),
			Logo:   first(obj, logoKeys),
			KeyID:  first(obj, keyIDKeys),
			Key:    first(obj, keyKeys),
			Cookie: first(obj, cookieKeys),
		}
		if e.Name == "" {
			e.Name = DefaultName
		}
		if e.URL == "" {
			res.Skipped = append(res.Skipped, Skip{Index: i, Reason: ReasonMissingURL})
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

type keyedItem struct {
	key string
	val any
}

func normalizeKeyed(dec *json.Decoder) (Result, error) {
	var items []keyedItem
	pos := make(map[string]int)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Result{}, &SchemaError{Root: "object", Err: err}
		}
		key, _ := tok.(string)
		var val any
		if err := dec.Decode(&val); err != nil {
			return Result{}, &SchemaError{Root: "object", Err: err}
		}
		// Duplicate keys: last value wins, first position is kept.
		if i, dup := pos[key]; dup {
			items[i].val = val
			continue
		}
		pos[key] = len(items)
		items = append(items, keyedItem{key: key, val: val})
	}

	res := Result{Shape: ShapeKeyed}
	for i, it := range items {
		obj, ok := it.val.(map[string]any)
		if !ok {
			res.Skipped = append(res.Skipped, Skip{Index: i, Key: it.key, Reason: ReasonNotObject})
			continue
		}
		id := strings.TrimSpace(it.key)
		if id == "" {
			res.Skipped = append(res.Skipped, Skip{Index: i, Key: it.key, Reason: ReasonMissingID})
			continue
		}
		e := Entry{
			ID:     id,
			Name:   "Channel " + id,
			URL:    first(obj, []string{"url"}),
			KeyID:  first(obj, []string{"kid", "keyId"}),
			Key:    first(obj, keyKeys),
			Cookie: first(obj, cookieKeys),
		}
		if e.URL == "" {
			res.Skipped = append(res.Skipped, Skip{Index: i, Key: it.key, Reason: ReasonMissingURL})
			continue
		}
		res.Entries = append(res.Entries, e)
	}
	return res, nil
}

// first returns the first non-empty scalar among keys.
func first(obj map[string]any, keys []string) string {
	for _, k := range keys {
		if s := scalar(obj[k]); s != "" {
			return s
		}
	}
	return ""
}

// scalar renders strings, numbers and booleans; anything else is "".
func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}

func kindOf(tok json.Token) string {
	switch tok.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	}
	return fmt.Sprintf("%T", tok)
}
