package blob

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"
)

// Backend type names, as used in config.RepositoryConfig.Params / a
// separate driver-selection field.
const (
	DriverS3    = "s3"
	DriverAzure = "azure"
	DriverGCS   = "gcs"
)

// ParamIgnoreGlobs, when present, is a comma-separated list of
// doublestar-style glob patterns matched against object keys; matching
// keys are excluded from Archives/Clients enumeration.
const ParamIgnoreGlobs = "ignoreGlobs"

// NewFromParams constructs a StorageBackend for the named driver and wraps
// it in a Repository. Params are validated eagerly, and construction starts
// no background work.
func NewFromParams(ctx context.Context, driver string, params map[string]string, logger *slog.Logger) (*Repository, error) {
	var (
		backend StorageBackend
		err     error
	)

	switch driver {
	case DriverS3:
		backend, err = NewS3Backend(ctx, params, logger)
	case DriverAzure:
		backend, err = NewAzureBackend(params, logger)
	case DriverGCS:
		backend, err = NewGCSBackend(ctx, params, logger)
	default:
		return nil, fmt.Errorf("unknown blob storage driver: %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("construct %s backend: %w", driver, err)
	}

	return NewRepository(Config{
		Backend:     backend,
		IgnoreGlobs: splitGlobs(params[ParamIgnoreGlobs]),
		ListRate:    rate.NewLimiter(rate.Limit(20), 20),
		Logger:      logger,
	}), nil
}

func splitGlobs(value string) []string {
	if value == "" {
		return nil
	}
	var globs []string
	start := 0
	for i := 0; i <= len(value); i++ {
		if i == len(value) || value[i] == ',' {
			if i > start {
				globs = append(globs, value[start:i])
			}
			start = i + 1
		}
	}
	return globs
}
