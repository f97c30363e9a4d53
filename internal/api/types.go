package api

import (
	"encoding/json"
	"sort"
)

// Top-level body keys the upstream uses for errors and notices.
const (
	KeyErrorMessage = "Error Message"
	KeyNote         = "Note"
	KeyInformation  = "Information"
	KeyMetaData     = "Meta Data"
)

// RawPayload is a decoded response body, keyed by top-level field. Values are
// left raw so the normalizer can decode the series with order preserved.
type RawPayload map[string]json.RawMessage

// Keys returns the top-level keys, sorted.
func (p RawPayload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns the value of key when it is a JSON string.
func (p RawPayload) String(key string) (string, bool) {
	raw, ok := p[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
