package constants

import "time"

const (
	FetchTimeout    = 10 * time.Second
	DatabaseTimeout = 5 * time.Second
	RequestTimeout  = 30 * time.Second
)

const (
	// MaxDatagramSize bounds both directions of a status exchange; it
	// stays under typical UDP MTU safety margins.
	MaxDatagramSize = 1200

	MinQueryConcurrency = 1
	MaxQueryConcurrency = 512
	MaxQueryRetries     = 5
)

const (
	DBMaxOpenConns    = 100
	DBMaxIdleConns    = 10
	DBConnMaxLifetime = 1 * time.Hour
	DBMaxIdleTime     = 10 * time.Minute
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	SessionLogLimit = 50
	UpdateBuffer    = 64
)
