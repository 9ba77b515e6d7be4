package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrVenueUnavailable = errors.New("venue unavailable")
	ErrAdapterMissing   = errors.New("venue adapter not registered")
	ErrOrderRejected    = errors.New("order rejected")
	ErrRollbackFailed   = errors.New("rollback failed, manual intervention required")
	ErrConfiguration    = errors.New("invalid venue configuration")
	ErrScanInFlight     = errors.New("scan already in flight")
	ErrCloseInProgress  = errors.New("close already in progress")
	ErrLockHeld         = errors.New("lock already held")
)
