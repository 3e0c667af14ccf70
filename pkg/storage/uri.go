package storage

import (
	"fmt"
	"strings"
)

// ParseURI splits "scheme://rest" into its scheme and the remainder
func ParseURI(uri string) (scheme, path string, err error) {
	idx := strings.Index(uri, "://")
	if idx <= 0 {
		return "", "", fmt.Errorf("invalid URI %q: missing scheme", uri)
	}
	return strings.ToLower(uri[:idx]), uri[idx+3:], nil
}

// parseBucketURI parses scheme://bucket/key into bucket and key
func parseBucketURI(uri, want string) (bucket, key string, err error) {
	scheme, path, err := ParseURI(uri)
	if err != nil {
		return "", "", err
	}
	if scheme != want {
		return "", "", fmt.Errorf("expected %s:// URI, got %s://", want, scheme)
	}

	parts := strings.SplitN(path, "/", 2)
	if parts[0] == "" {
		return "", "", fmt.Errorf("invalid %s URI: missing bucket name", want)
	}
	bucket = parts[0]
	if len(parts) > 1 {
		key = parts[1]
	}
	if key == "" {
		return "", "", fmt.Errorf("invalid %s URI: missing object key", want)
	}
	return bucket, key, nil
}

func objectKey(filename string) string {
	return "videos/" + filename
}
