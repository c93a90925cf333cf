package shared

import "errors"

// ErrUnauthorized indicates a missing or invalid admin token.
var ErrUnauthorized = errors.New("unauthorized")
