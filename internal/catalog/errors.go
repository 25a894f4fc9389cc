package catalog

import "fmt"

// FetchError means the schema or translation document could not be
// retrieved. A catalog whose first refresh fails is unusable.
type FetchError struct {
	Resource string
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Resource, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// NotFoundError names both forms tried by ResolveEntityName.
type NotFoundError struct {
	Input    string
	Fallback string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Entity '%s' not found (also tried '%s')", e.Input, e.Fallback)
}
