package refetch

import "errors"

var (
	ErrNotMounted      = errors.New("refetch: provider not mounted")
	ErrInvalidSchedule = errors.New("refetch: invalid schedule")
)
