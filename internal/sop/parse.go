// Package sop fetches and parses sop.toml package descriptors.
package sop

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/soplang/registry/internal/core"
)

// Parse decodes a sop.toml document. Numbers become json.Number, the same
// representation the registry codec uses, so a descriptor value compares
// equal to the same number read from registry JSON.
func Parse(data []byte) (core.Descriptor, error) {
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding toml: %w", err)
	}
	for k, v := range doc {
		doc[k] = normalize(v)
	}
	return core.Descriptor(doc), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case int64:
		return json.Number(strconv.FormatInt(t, 10))
	case float64:
		if math.IsInf(t, 0) || math.IsNaN(t) {
			return t
		}
		return json.Number(strconv.FormatFloat(t, 'g', -1, 64))
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	default:
		return v
	}
}
