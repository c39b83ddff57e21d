package observability

import (
	"log/slog"

	"github.com/couchcryptid/h5geotiff/internal/config"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

// NewLogger builds the process logger from cfg and installs it as the slog
// default. Records go to stdout.
func NewLogger(cfg *config.Config) *slog.Logger {
	return sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
}
