package observe

import (
	"context"

	"github.com/rs/zerolog"
)

// Logger returns the logger carried by ctx, tagged with component.
// The result is disabled when ctx carries no logger.
func Logger(ctx context.Context, component string) zerolog.Logger {
	return zerolog.Ctx(ctx).With().Str("component", component).Logger()
}
