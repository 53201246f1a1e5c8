package fetch

import "net/url"

// LogicalKey returns the cache key of a request. Params are encoded in
// sorted key order so the same set always yields the same key.
func LogicalKey(dataType string, params url.Values) string {
	return dataType + "_" + params.Encode()
}
