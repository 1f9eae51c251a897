package httpx

import "errors"

// ErrMissingBearer is passed to the ErrorWriter when no credential was sent.
var ErrMissingBearer = errors.New("missing_bearer_token")
