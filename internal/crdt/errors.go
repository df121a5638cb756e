package crdt

import (
	"errors"
	"fmt"
)

// ErrUnsupportedVersion snapshot was produced by an unknown format version
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// EncodingError reports bytes that could not be decoded into a document.
// Such payloads are dropped, never merged.
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("malformed document encoding: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
