package types

import "errors"

// ErrInvalid marks a value that failed basic domain validation (bad group
// id, out-of-range year/month). Callers compare with errors.Is.
var ErrInvalid = errors.New("invalid value")
