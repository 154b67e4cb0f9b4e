package dilithium

import "github.com/pqwasm/dilithium-go/pkg/dilithium/logging"

// Config expresses the knobs of an Engine.
type Config struct {
	// Params selects the parameter set the foreign module was built for.
	// Leaving it zero selects MLDSA44.
	Params Params

	// EnableZeroization overwrites scratch regions and secret-key regions with
	// zeros before they are returned to the foreign allocator.
	EnableZeroization bool

	// Logger receives per-call debug records. Nil binds to slog.Default().
	Logger logging.Logger
}

func (c Config) withDefaults() Config {
	if c.Params.IsZero() {
		c.Params = MLDSA44
	}
	if c.Logger == nil {
		c.Logger = logging.New(nil)
	}
	return c
}
