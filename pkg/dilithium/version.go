package dilithium

import (
	"context"
	"errors"
)

var (
	// Version is populated at build time via ldflags.
	Version = "v0.0.0-in-progress"
)

// WrapperVersion returns the semantic version populated at build time via
// ldflags. In development it defaults to v0.0.0-in-progress.
func WrapperVersion() string {
	return Version
}

// ModuleVersion returns the version string reported by the foreign module, or
// "unknown" when it does not implement VersionReporter or reports nothing.
func ModuleVersion(ctx context.Context, f Foreign) (string, error) {
	if f == nil {
		return "", ErrNilForeign
	}
	r, ok := f.(VersionReporter)
	if !ok {
		return "unknown", nil
	}
	v, err := r.Version(ctx)
	if err != nil {
		return "", errors.Join(ErrForeignCall, err)
	}
	if v == "" {
		return "unknown", nil
	}
	return v, nil
}
