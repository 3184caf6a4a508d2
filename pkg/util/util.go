package util

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Map applies a transformation function to each element of a slice and returns a new slice
// with the transformed values. This is a generic implementation of the map higher-order function.
//
// Type Parameters:
//   - A: The type of elements in the input slice
//   - B: The type of elements in the output slice
//
// Parameters:
//   - coll: The input slice to transform
//   - mapper: Function that transforms each element and receives the element's index
//
// Returns:
//   - []B: A new slice containing the transformed elements
func Map[A any, B any](coll []A, mapper func(i A, index uint64) B) []B {
	out := make([]B, len(coll))
	for i, item := range coll {
		out[i] = mapper(item, uint64(i))
	}
	return out
}

// Find returns the first element in a slice that satisfies the provided criteria function.
// If no element satisfies the criteria, nil is returned.
//
// Type Parameters:
//   - A: The type of elements in the slice
//
// Parameters:
//   - coll: The input slice to search
//   - criteria: Function that determines whether an element matches
//
// Returns:
//   - *A: Pointer to the first matching element, or nil if no match is found
func Find[A any](coll []*A, criteria func(i *A) bool) *A {
	for _, item := range coll {
		if criteria(item) {
			return item
		}
	}
	return nil
}

// Filter returns the elements of a slice that satisfy the provided criteria function.
//
// Type Parameters:
//   - A: The type of elements in the slice
//
// Parameters:
//   - coll: The input slice to filter
//   - criteria: Function that determines whether an element is kept
//
// Returns:
//   - []A: A new slice containing only the matching elements
func Filter[A any](coll []A, criteria func(i A) bool) []A {
	out := make([]A, 0, len(coll))
	for _, item := range coll {
		if criteria(item) {
			out = append(out, item)
		}
	}
	return out
}

// MostCommon returns the element whose key occurs most often in the slice.
// Ties are broken by lexicographic order of the key, smallest first, so the
// result is deterministic regardless of input order. The returned count is the
// number of occurrences of the winning key.
//
// Type Parameters:
//   - A: The type of elements in the slice
//
// Parameters:
//   - coll: The input slice
//   - key: Function producing the canonical serialisation used for equality
//
// Returns:
//   - A: The first element carrying the winning key
//   - int: The occurrence count of the winning key
func MostCommon[A any](coll []A, key func(i A) string) (A, int) {
	var zero A
	if len(coll) == 0 {
		return zero, 0
	}

	counts := make(map[string]int, len(coll))
	first := make(map[string]A, len(coll))
	for _, item := range coll {
		k := key(item)
		counts[k]++
		if _, seen := first[k]; !seen {
			first[k] = item
		}
	}

	winner := ""
	winnerCount := -1
	for k, c := range counts {
		if c > winnerCount || (c == winnerCount && k < winner) {
			winner = k
			winnerCount = c
		}
	}
	return first[winner], winnerCount
}

// CanonicalJSON serialises a value as JSON with object keys in sorted order at
// every nesting level. Two structurally equal values always produce identical
// bytes, which is required anywhere a digest or signature is computed over the
// serialisation.
//
// Parameters:
//   - v: The value to serialise
//
// Returns:
//   - []byte: The canonical JSON encoding
//   - error: An error if the value cannot be marshalled
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode intermediate JSON: %w", err)
	}
	out, err := marshalCanonical(decoded)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			vb, err := marshalCanonical(val[k])
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			vb, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(val)
	}
}
