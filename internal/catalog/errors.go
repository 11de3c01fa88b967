package catalog

import "errors"

var (
	// ErrProductNotFound is returned when an id does not exist in the catalog.
	ErrProductNotFound = errors.New("catalog: product not found")

	// ErrUnavailable is returned when the backing store cannot be read at all.
	ErrUnavailable = errors.New("catalog: store unavailable")
)
