package positions

import "errors"

var (
	// ErrUnresolvedPositions is returned when positions remain in the pool
	// after the full resolver pipeline has run. All positions must be
	// resolved into groups.
	ErrUnresolvedPositions = errors.New("positions: all positions must be resolved into groups")

	// ErrSymbolNotInGroup is returned when a symbol lookup misses a group
	// or group key.
	ErrSymbolNotInGroup = errors.New("positions: symbol not found in group")

	// ErrConflictingGroups is returned when two collections being combined
	// each claim a differently-valued default group for the same symbol.
	ErrConflictingGroups = errors.New("positions: conflicting default group for symbol")

	// ErrDuplicateDescriptor is returned when two registered descriptors
	// share a name.
	ErrDuplicateDescriptor = errors.New("positions: duplicate descriptor name")

	// ErrWrongGroupArity is returned when a group with an unexpected number
	// of legs is passed to a model that cannot price it.
	ErrWrongGroupArity = errors.New("positions: unexpected position count for group")
)
