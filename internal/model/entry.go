package model

import "encoding/json"

// Entry is a single configuration record addressed by its path.
// A nil Value means the entry exists but holds no document (SQL NULL);
// a JSON null is the four bytes "null".
type Entry struct {
	ID    string          `json:"id"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// WriteMode selects how a write combines with any existing value at a path.
type WriteMode string

const (
	// ModeReplace discards whatever was previously stored ("set").
	ModeReplace WriteMode = "replace"
	// ModeMerge shallow-merges an object into an existing object ("update").
	// When either side is not an object it behaves like ModeReplace.
	ModeMerge WriteMode = "merge"
)

// IsObject reports whether raw is a JSON object.
func IsObject(raw json.RawMessage) bool {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// MergeObjects returns the shallow union of base and delta, with delta's keys
// winning. If either side is not a JSON object, delta is returned unchanged.
func MergeObjects(base, delta json.RawMessage) (json.RawMessage, error) {
	if !IsObject(base) || !IsObject(delta) {
		return delta, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(delta, &patch); err != nil {
		return nil, err
	}
	for k, v := range patch {
		merged[k] = v
	}
	return json.Marshal(merged)
}
