package api

const (
	// DefaultMaxBodySize is the default maximum request body size (64MB).
	// Vision items carry base64 images inline, so batches get large.
	DefaultMaxBodySize = 64 * 1024 * 1024
)
