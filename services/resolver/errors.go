package resolver

import "fmt"

// MetadataError marks a resolution that failed before any provider ran.
// Without a title there is nothing to search for, so the whole resolution
// is abandoned rather than degraded.
type MetadataError struct {
	Key string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata resolution failed for %s: %v", e.Key, e.Err)
}

func (e *MetadataError) Unwrap() error { return e.Err }
