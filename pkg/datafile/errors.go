package datafile

import "github.com/pkg/errors"

var (
	ErrMissingField    = errors.New("metadata field missing")
	ErrMissingColumn   = errors.New("table column missing")
	ErrUnsupportedMode = errors.New("unsupported measurement mode")
	ErrMalformedBlock  = errors.New("malformed numeric block")
)
