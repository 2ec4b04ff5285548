package domain

import "errors"

var (
	// ErrInvalidSession is returned when an operation names a session that was never begun.
	ErrInvalidSession = errors.New("invalid session")

	// ErrTurnOrder is returned when an append would put two turns of the same role in a row.
	ErrTurnOrder = errors.New("turn order violation")
)
