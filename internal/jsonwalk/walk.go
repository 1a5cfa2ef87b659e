// Package jsonwalk implements a tolerant walker over decoded JSON values
// (map[string]any / []any trees) from upstream services whose schemas drift.
//
// Matching contract: traversal is depth-first; within an object, keys are
// visited in lexicographic order so that "first match" is reproducible (Go
// map iteration order is randomized). Keys are compared after lowercasing
// and replacing '-' with '_'.
package jsonwalk

import (
	"sort"
	"strconv"
	"strings"
)

// NormalizeKey lowercases a key and folds '-' into '_' so callers can match
// snake_case, kebab-case, and camel-case-insensitive variants with one set.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "-", "_"))
}

// KeySet builds a lookup set of normalized keys.
func KeySet(keys ...string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		set[NormalizeKey(k)] = true
	}
	return set
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// AsFloat coerces a scalar to float64. Strings have commas stripped before
// parsing. Booleans and non-numeric values report false.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(x, ",", ""))
		if cleaned == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// FirstString returns the first string value found under a matching key.
func FirstString(obj any, keys map[string]bool) (string, bool) {
	switch node := obj.(type) {
	case map[string]any:
		for _, k := range sortedKeys(node) {
			v := node[k]
			if keys[NormalizeKey(k)] {
				if s, ok := v.(string); ok {
					return s, true
				}
			}
			if s, ok := FirstString(v, keys); ok {
				return s, true
			}
		}
	case []any:
		for _, item := range node {
			if s, ok := FirstString(item, keys); ok {
				return s, true
			}
		}
	}
	return "", false
}

// Numbers collects every numeric value found under a matching key, in
// traversal order.
func Numbers(obj any, keys map[string]bool) []float64 {
	var out []float64
	collectNumbers(obj, keys, &out)
	return out
}

func collectNumbers(obj any, keys map[string]bool, out *[]float64) {
	switch node := obj.(type) {
	case map[string]any:
		for _, k := range sortedKeys(node) {
			v := node[k]
			if keys[NormalizeKey(k)] {
				if f, ok := AsFloat(v); ok {
					*out = append(*out, f)
				}
			}
			collectNumbers(v, keys, out)
		}
	case []any:
		for _, item := range node {
			collectNumbers(item, keys, out)
		}
	}
}

// FirstNumber returns the first numeric value found under a matching key.
func FirstNumber(obj any, keys map[string]bool) (float64, bool) {
	nums := Numbers(obj, keys)
	if len(nums) == 0 {
		return 0, false
	}
	return nums[0], true
}

// FirstScope returns the first sub-tree whose key matches, for callers that
// want to narrow a search (e.g. balances under a "usdc" object) before
// falling back to the whole blob.
func FirstScope(obj any, keys map[string]bool) (any, bool) {
	switch node := obj.(type) {
	case map[string]any:
		for _, k := range sortedKeys(node) {
			v := node[k]
			if keys[NormalizeKey(k)] {
				return v, true
			}
			if scope, ok := FirstScope(v, keys); ok {
				return scope, true
			}
		}
	case []any:
		for _, item := range node {
			if scope, ok := FirstScope(item, keys); ok {
				return scope, true
			}
		}
	}
	return nil, false
}

// FirstMatch walks the tree and returns the first scalar for which match
// returns true, given the normalized key it sits under.
func FirstMatch(obj any, match func(key string, value any) bool) (any, bool) {
	switch node := obj.(type) {
	case map[string]any:
		for _, k := range sortedKeys(node) {
			v := node[k]
			switch v.(type) {
			case map[string]any, []any:
				if found, ok := FirstMatch(v, match); ok {
					return found, true
				}
			default:
				if match(NormalizeKey(k), v) {
					return v, true
				}
			}
		}
	case []any:
		for _, item := range node {
			if found, ok := FirstMatch(item, match); ok {
				return found, true
			}
		}
	}
	return nil, false
}
