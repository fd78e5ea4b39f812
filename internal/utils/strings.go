// Package utils provides small helpers shared by the relay packages.
package utils

// MaskKey masks a credential for logs, showing the first 8 and last 4 chars.
// Keys shorter than 16 chars are fully hidden.
func MaskKey(key string) string {
	if key == "" {
		return "(empty)"
	}
	if len(key) < 16 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}

// MaskKeyShort shows only the first and last 4 chars. Used in CLI listings
// where a whole pool is printed on one line.
func MaskKeyShort(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// MaskKeys applies MaskKeyShort to every key.
func MaskKeys(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = MaskKeyShort(k)
	}
	return out
}
