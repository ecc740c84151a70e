package analysis

import "github.com/pkg/errors"

var (
	ErrEmptyData       = errors.New("no data")
	ErrNoCrossing      = errors.New("voltage crossings not found")
	ErrGeometryNotSet  = errors.New("geometry not set")
	ErrInvalidArgument = errors.New("invalid argument")
)
