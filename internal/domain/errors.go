package domain

import "errors"

var (
	ErrStationNotFound     = errors.New("station not found")
	ErrConnectorNotFound   = errors.New("connector not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrUserNotFound        = errors.New("user not found")

	// ErrConnectorBusy is returned when a transaction open is attempted on a
	// connector that already references an active transaction.
	ErrConnectorBusy = errors.New("connector busy")

	// ErrStationNotConnected is returned by the outbound dispatcher when no
	// live session exists for the target station.
	ErrStationNotConnected = errors.New("station not connected")

	ErrDuplicateIdTag = errors.New("id tag already registered")
)
