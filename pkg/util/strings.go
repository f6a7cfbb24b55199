package util

import "net/url"

// CanonicalKey builds a stable key from an operation name and its parameters.
// Parameters are sorted by name and escaped, so neither map order nor
// separators inside values can make two requests share a key.
func CanonicalKey(op string, params map[string]string) string {
	if len(params) == 0 {
		return op
	}
	q := make(url.Values, len(params))
	for k, v := range params {
		q.Set(k, v)
	}
	return op + "?" + q.Encode()
}
