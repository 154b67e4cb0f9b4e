package wasmmod

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Load compiles wasmBytes in a new wazero runtime, provides the WASI and
// Emscripten host modules it may import, instantiates it and runs its
// _initialize export when present. The returned Module owns the runtime;
// Close releases it.
func Load(ctx context.Context, wasmBytes []byte, exports Exports) (*Module, error) {
	r := wazero.NewRuntime(ctx)

	// random_get backs the reference implementation's randombytes().
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("wasmmod: compile module: %w", err)
	}

	if _, err := emscripten.InstantiateForModule(ctx, r, compiled); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("wasmmod: instantiate emscripten host: %w", err)
	}

	config := wazero.NewModuleConfig().
		WithName("dilithium").
		WithRandSource(rand.Reader).
		WithStartFunctions()

	mod, err := r.InstantiateModule(ctx, compiled, config)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("wasmmod: instantiate module: %w", err)
	}

	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			r.Close(ctx)
			return nil, fmt.Errorf("wasmmod: _initialize: %w", err)
		}
	}

	m, err := New(mod, exports)
	if err != nil {
		r.Close(ctx)
		return nil, err
	}
	m.close = r.Close
	return m, nil
}
