package state

import "errors"

var (
	ErrInvalidWinningValue = errors.New("winning value out of range 0-9")
)
