package wahindex

import "errors"

// Sentinel errors surfaced at the API boundary. Kernels and other
// lower-level helpers assume validated inputs and panic on invariant
// violations instead (a broken LAW, for instance, is a programming error,
// not a caller error).
var (
	// ErrArgumentRequired marks a missing required input: an empty catalog
	// name, a range filter with neither bound, or OrOutOfPlace with fewer
	// than two vectors.
	ErrArgumentRequired = errors.New("wahindex: argument required")

	// ErrArgumentOutOfRange marks an inverted min/max range, a filter value
	// whose type does not match the catalog's key type, or removal of an
	// unknown primary key.
	ErrArgumentOutOfRange = errors.New("wahindex: argument out of range")

	// ErrCatalogMismatch marks a filter/sort/facet parameter naming a
	// catalog that does not belong to the query's engine.
	ErrCatalogMismatch = errors.New("wahindex: catalog does not belong to this engine")

	// ErrDuplicateParameter marks a second filter on a one-to-one catalog,
	// or a second sort/facet parameter for a catalog already referenced.
	ErrDuplicateParameter = errors.New("wahindex: duplicate parameter for catalog")

	// ErrForwardOnlyViolation marks a write at a logical position before
	// the current tail of an already-compressed vector.
	ErrForwardOnlyViolation = errors.New("wahindex: forward-only violation")

	// ErrUnsupportedOperation marks an operation the data model does not
	// support for the given inputs (AND/OR in place on a compressed
	// receiver, get_bit_positions(false) on a compressed vector, AND
	// population of two compressed vectors, or reading sort parameters
	// after sort-by-primary-key has been set).
	ErrUnsupportedOperation = errors.New("wahindex: unsupported operation")

	// ErrAlreadyExecuted marks a second call to Query.Execute.
	ErrAlreadyExecuted = errors.New("wahindex: query already executed")

	// ErrUnsafeUnavailable marks construction of an allow-unsafe vector on
	// a build lacking the unsafe kernel set.
	ErrUnsafeUnavailable = errors.New("wahindex: unsafe kernels unavailable")
)
