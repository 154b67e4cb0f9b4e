package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
	"github.com/pqwasm/dilithium-go/pkg/dilithium/logging"
	"github.com/pqwasm/dilithium-go/pkg/dilithium/softmod"
	"github.com/pqwasm/dilithium-go/pkg/dilithium/wasmmod"
)

// options holds the persistent flags after the config file was merged in.
type options struct {
	configPath string
	variant    string
	wasm       string
	zeroize    bool
	logLevel   string
	logFormat  string
	memorySize uint32
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "dilithium-go",
		Short: "ML-DSA (Dilithium) signatures over a foreign linear-memory module",
		Long: `dilithium-go exercises the dilithium marshaling layer.

By default it runs against the in-process software module. Pass --wasm with
the path of an Emscripten build exporting malloc, free,
crypto_sign_keypair_wrapper, crypto_sign_wrapper and crypto_verify_wrapper to
run against the WebAssembly reference implementation instead.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.mergeConfig(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "JSON config file (relative to the working directory)")
	flags.StringVar(&opts.variant, "variant", dilithium.MLDSA44.Name, "parameter set: ML-DSA-44, ML-DSA-65 or ML-DSA-87")
	flags.StringVar(&opts.wasm, "wasm", "", "WebAssembly module to load instead of the software module")
	flags.BoolVar(&opts.zeroize, "zeroize", true, "wipe scratch and secret key regions before freeing them")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")
	flags.Uint32Var(&opts.memorySize, "memory-size", softmod.DefaultMemorySize, "linear memory size of the software module in bytes")

	root.AddCommand(
		newDemoCmd(opts),
		newRoundtripCmd(opts),
		newVersionCmd(opts),
	)
	return root
}

// mergeConfig applies the config file to every flag not set explicitly.
func (o *options) mergeConfig(cmd *cobra.Command) error {
	if o.configPath == "" {
		return nil
	}
	cfg, err := loadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	changed := cmd.Flags().Changed
	if cfg.Variant != "" && !changed("variant") {
		o.variant = cfg.Variant
	}
	if cfg.Wasm != "" && !changed("wasm") {
		o.wasm = cfg.Wasm
	}
	if cfg.Zeroize != nil && !changed("zeroize") {
		o.zeroize = *cfg.Zeroize
	}
	if cfg.LogLevel != "" && !changed("log-level") {
		o.logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !changed("log-format") {
		o.logFormat = cfg.LogFormat
	}
	if cfg.MemorySize != 0 && !changed("memory-size") {
		o.memorySize = cfg.MemorySize
	}
	return nil
}

// session is one engine over one freshly created foreign module.
type session struct {
	engine  *dilithium.Engine
	foreign dilithium.Foreign
	closers []func(context.Context) error
}

func (o *options) openSession(ctx context.Context, logOut io.Writer) (*session, error) {
	params, err := dilithium.ParamsByName(o.variant)
	if err != nil {
		return nil, err
	}
	slogger, err := newLogger(logOut, o.logLevel, o.logFormat)
	if err != nil {
		return nil, err
	}

	s := &session{}
	if o.wasm != "" {
		path, err := securePath(o.wasm)
		if err != nil {
			return nil, fmt.Errorf("wasm: %w", err)
		}
		wasmBytes, err := os.ReadFile(path) // #nosec G304 -- path validated by securePath
		if err != nil {
			return nil, fmt.Errorf("wasm: %w", err)
		}
		mod, err := wasmmod.Load(ctx, wasmBytes, wasmmod.Exports{})
		if err != nil {
			return nil, err
		}
		s.foreign = mod
		s.closers = append(s.closers, mod.Close)
	} else {
		mod, err := softmod.New(softmod.Options{Params: params, MemorySize: o.memorySize})
		if err != nil {
			return nil, err
		}
		s.foreign = mod
	}

	eng, err := dilithium.Open(s.foreign, dilithium.Config{
		Params:            params,
		EnableZeroization: o.zeroize,
		Logger:            logging.New(slogger),
	})
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	s.engine = eng
	s.closers = append([]func(context.Context) error{eng.Close}, s.closers...)
	return s, nil
}

func (s *session) close(ctx context.Context) error {
	var errs []error
	for _, c := range s.closers {
		if err := c(ctx); err != nil && !errors.Is(err, dilithium.ErrEngineClosed) {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
