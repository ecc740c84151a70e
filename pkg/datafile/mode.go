package datafile

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode is the value of the "Measurement type" metadata field.
type Mode string

const (
	ModeDCIV   Mode = "DC IV"
	ModeCV     Mode = "CVS"
	ModePQPUND Mode = "PQPUND"
	ModePUNDD  Mode = "PUNDD"
)

const MeasurementTypeKey = "Measurement type"

var modes = []Mode{ModeDCIV, ModeCV, ModePQPUND, ModePUNDD}

func Modes() []Mode {
	return append([]Mode(nil), modes...)
}

func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	for _, m := range modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", errors.Wrapf(ErrUnsupportedMode, "%q", s)
}

func (m Mode) String() string {
	return string(m)
}
