package logger

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// New builds the process logger. LOG_LEVEL is applied here, before
// configuration loads, so even config loading logs at the requested
// level; the .env file is honored the same way config honors it.
func New() zerolog.Logger {
	_ = godotenv.Load()
	return SetLevel(os.Getenv("LOG_LEVEL"))
}

// SetLevel builds a logger at the named level; empty or unknown names
// keep the debug level.
func SetLevel(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.DebugLevel
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Caller().
		Logger()

	return logger.Level(parsed)
}
