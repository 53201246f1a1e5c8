package cache

import (
	"fmt"
	"strings"
	"unicode"

	"kntu-schedule/pkg/config"
)

// GlobalPrefix namespaces every key the cache owns. Keys outside it are
// never read, written or cleared by the Store.
const GlobalPrefix = config.KeyPrefix

// keySeparator joins a strategy prefix and a logical key.
const keySeparator = "_"

// DefaultPrefix returns the prefix used when no strategy names one.
func DefaultPrefix(dataType string) string {
	return GlobalPrefix + dataType
}

// BuildKey returns the storage key for logicalKey under prefix.
// Example: BuildKey("kntu_groups", "groups_idFaculty=3") -> "kntu_groups_groups_idFaculty=3"
func BuildKey(prefix, logicalKey string) string {
	return prefix + keySeparator + logicalKey
}

// ClearPrefix returns the key prefix Clear removes: every cache key when
// dataType is empty, otherwise only keys of that data type.
func ClearPrefix(dataType string) string {
	if dataType == "" {
		return GlobalPrefix
	}
	return DefaultPrefix(dataType) + keySeparator
}

// ValidateKey checks that a logical key can be stored.
//
// Rules:
// - Non-empty string
// - No control characters
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}

	if strings.IndexFunc(key, unicode.IsControl) >= 0 {
		return fmt.Errorf("%w: key contains control character", ErrInvalidKey)
	}

	return nil
}
