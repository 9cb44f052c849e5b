package store

import "errors"

var (
	// ErrConnectionUnavailable means the distributed store could not be
	// reached or initialized. Callers fall back to the file store.
	ErrConnectionUnavailable = errors.New("store: distributed store unavailable")

	// ErrAdapterIncompatibility means the backend exposes no usable
	// operation or answered in a shape the adapter does not recognize.
	ErrAdapterIncompatibility = errors.New("store: backend shape not recognized")

	// ErrBackendOperation wraps a failing call against a recognized backend.
	ErrBackendOperation = errors.New("store: backend operation failed")

	// ErrEmptyResult is returned when the backend yields no messages for a
	// room. It is ambiguous (empty room or lagging replica), so callers
	// treat it like any other adapter failure.
	ErrEmptyResult = errors.New("store: backend returned no messages")

	// ErrFieldNotFound is returned by Extract when no strategy finds a field.
	ErrFieldNotFound = errors.New("store: field not found")

	// ErrPersistenceFailure means the fallback file store could not be read
	// or written.
	ErrPersistenceFailure = errors.New("store: file persistence failed")
)

// IsAdapterFailure reports whether err means the distributed store could
// not serve a call. It is never a statement that the data does not exist.
func IsAdapterFailure(err error) bool {
	return errors.Is(err, ErrConnectionUnavailable) ||
		errors.Is(err, ErrAdapterIncompatibility) ||
		errors.Is(err, ErrBackendOperation) ||
		errors.Is(err, ErrEmptyResult)
}
