package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidInclude is returned when an include flag is neither a boolean nor "true"/"false".
var ErrInvalidInclude = errors.New("include must be a boolean")

// Inclusion is a three-valued include flag: true, false or unset. Unset means included.
// It accepts JSON booleans, the strings "true" and "false" in any case with
// surrounding spaces, and null.
type Inclusion struct {
	set   bool
	value bool
}

// Include returns a set flag.
func Include(v bool) Inclusion {
	return Inclusion{set: true, value: v}
}

// IsSet reports whether a value was given.
func (i Inclusion) IsSet() bool { return i.set }

// Included reports whether the document takes part in search.
func (i Inclusion) Included() bool {
	return !i.set || i.value
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Inclusion) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*i = Inclusion{}
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*i = Include(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: got %s", ErrInvalidInclude, data)
	}
	v, err := ParseInclusion(s)
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// MarshalJSON implements json.Marshaler. Unset encodes as null.
func (i Inclusion) MarshalJSON() ([]byte, error) {
	if !i.set {
		return []byte("null"), nil
	}
	return json.Marshal(i.value)
}

// ParseInclusion parses "true" or "false" (trimmed, case-insensitive). A blank string is unset.
func ParseInclusion(s string) (Inclusion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return Include(true), nil
	case "false":
		return Include(false), nil
	case "":
		return Inclusion{}, nil
	default:
		return Inclusion{}, fmt.Errorf("%w: got %q", ErrInvalidInclude, s)
	}
}

// DocumentRef names a document of a conversation and whether it is searchable.
type DocumentRef struct {
	ID      string    `json:"id"`
	Include Inclusion `json:"include"`
}

// AllowedDocs returns the ids of included documents, in order and without blanks
// or duplicates. The result is non-nil even when nothing is included, so callers
// can tell "restrict to nothing" from "no restriction".
func AllowedDocs(refs []DocumentRef) []string {
	ids := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, r := range refs {
		id := strings.TrimSpace(r.ID)
		if id == "" || !r.Include.Included() {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
