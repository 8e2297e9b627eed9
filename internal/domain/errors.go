package domain

import (
	"errors"
	"fmt"
)

// Fetch errors surfaced by the download protocol and retry wrapper.
var (
	ErrNoMirrors     = errors.New("no mirrors configured")
	ErrUnknownLength = errors.New("blob length not known or provided by server")
	ErrBlobTooSmall  = errors.New("downloaded blob was too small")
	ErrBlobTooLarge  = errors.New("downloaded blob was too large")
	ErrOverwrite     = errors.New("store reported more bytes written than were submitted")
)

// Store errors.
var (
	ErrAlreadyExists = errors.New("blob already exists")
	ErrNotFound      = errors.New("not found")
)

// Resolver errors.
var (
	ErrPackageNotFound  = errors.New("package not found in repository")
	ErrSizeTooLarge     = errors.New("repository reported a blob size that is too large")
	ErrInvalidContentID = errors.New("invalid content id")
)

// BadHTTPStatusError reports a blob request that was rejected by a mirror.
type BadHTTPStatusError struct {
	Status int
}

func (e *BadHTTPStatusError) Error() string {
	return fmt.Sprintf("http request expected 200, got %d", e.Status)
}

// ContentLengthMismatchError reports a disagreement between the caller's
// expected blob length and the length declared by the mirror.
type ContentLengthMismatchError struct {
	Expected uint64
	Actual   uint64
}

func (e *ContentLengthMismatchError) Error() string {
	return fmt.Sprintf("expected blob length of %d, got %d", e.Expected, e.Actual)
}

// UnexpectedStatusError reports an unexpected response status from the
// repository metadata endpoint.
type UnexpectedStatusError struct {
	Status int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("repository returned an unexpected status: %d", e.Status)
}

// NetworkError wraps a transport-level failure (connect, send, or a broken
// body stream) so the telemetry path can distinguish it from local errors.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// BlobURLError reports a mirror base URL a blob URL cannot be derived from.
type BlobURLError struct {
	URL    string
	Reason string
}

func (e *BlobURLError) Error() string {
	return fmt.Sprintf("bad mirror url %q: %s", e.URL, e.Reason)
}
