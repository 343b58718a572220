package domain

import "errors"

// Errores lógicos: indican estado en memoria corrupto o fuera de sync.
var (
	ErrAlreadyActive      = errors.New("officer is already active")
	ErrNotFound           = errors.New("officer not found in roster")
	ErrAlreadyOnDuty      = errors.New("officer is already on duty")
	ErrInvariantViolation = errors.New("patrol log invariant violated")
	ErrResolverLost       = errors.New("saved voice channel vanished after insert conflict")
	ErrTimeOverflow       = errors.New("date calculation overflowed")
)
