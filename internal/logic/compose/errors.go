package compose

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientShots is returned when the shot count does not match
	// the layout.
	ErrInsufficientShots = errors.New("compose: shot count does not match layout")

	// ErrWrongShotCount is the film strip flavour of ErrInsufficientShots.
	ErrWrongShotCount = fmt.Errorf("%w: film strip needs exactly 4 shots", ErrInsufficientShots)

	// ErrUnknownFrame is returned when a custom frame id is not registered.
	ErrUnknownFrame = errors.New("compose: unknown custom frame")

	// ErrInvalidShot is returned for nil or malformed shot buffers.
	ErrInvalidShot = errors.New("compose: invalid shot buffer")
)
