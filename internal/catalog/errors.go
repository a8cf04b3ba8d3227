package catalog

import "errors"

// ErrNotFound is returned by repository methods when the requested record
// does not exist. Callers should check it with errors.Is.
var ErrNotFound = errors.New("catalog: record not found")

// ErrConflict is returned when an insert or update violates a unique
// constraint, e.g. a duplicate Profile.Code.
var ErrConflict = errors.New("catalog: record already exists")
