package eventdb

import "errors"

var (
	// Configuration errors
	ErrInvalidDriver         = errors.New("unsupported database driver")
	ErrMissingHost           = errors.New("database host is required")
	ErrMissingDatabase       = errors.New("database name is required")
	ErrInvalidPort           = errors.New("invalid database port")
	ErrInvalidMaxOpenConns   = errors.New("max open connections must be >= 0")
	ErrInvalidMaxIdleConns   = errors.New("max idle connections must be >= 0")
	ErrMaxIdleExceedsMaxOpen = errors.New("max idle connections cannot exceed max open connections")
	ErrInvalidTimeout        = errors.New("timeout must be positive")

	// Runtime errors
	ErrDatabaseClosed = errors.New("event database is closed")
	ErrInvalidLimit   = errors.New("query limit must be positive")
)
