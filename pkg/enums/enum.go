// Package enums holds the string-backed states shared by the database
// models, the API and the outbox payloads. Every enum keeps its allowed
// values in one slice that IsValid and its Parse function share.
package enums

import (
	"fmt"
	"slices"
	"strings"
)

func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse trims and lower-cases value before matching it against set.
func parse[T ~string](kind string, set []T, value string) (T, error) {
	v := T(strings.ToLower(strings.TrimSpace(value)))
	if !member(set, v) {
		return "", fmt.Errorf("invalid %s %q", kind, value)
	}
	return v, nil
}
