package auth

import "errors"

// Authentication failures all map to 401 so responses do not confirm
// whether a well-formed key exists.
var (
	ErrMissingKey       = errors.New("API key required in X-API-Key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrInvalidKey       = errors.New("invalid API key")
)
