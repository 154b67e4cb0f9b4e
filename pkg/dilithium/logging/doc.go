// Package logging provides the small logging facade used by the dilithium
// engine.
//
// Logger wraps the context-aware subset of log/slog. The default
// implementation forwards to a *slog.Logger:
//
//	logger := logging.New(nil) // slog.Default()
//
//	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
//	logger = logging.New(slog.New(handler))
//
// The engine logs one debug record per foreign call with the operation, the
// sizes involved, the foreign status and the duration. It never logs secret
// keys or message bytes; public keys appear only as fingerprints. Redacted
// produces the placeholder attribute for values that were deliberately
// omitted:
//
//	logger.Info(ctx, "key pair generated", logging.Redacted("secret_key"))
//	// secret_key="[redacted]"
package logging
