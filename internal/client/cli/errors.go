package cli

import "errors"

var (
	ErrUnknownCommand  = errors.New("unknown command")
	ErrInvalidField    = errors.New("invalid field, expected key=value")
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
	ErrMissingID       = errors.New("document id is required")
)
