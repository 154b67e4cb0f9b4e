package dilithium

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/pqwasm/dilithium-go/pkg/dilithium/logging"
)

const (
	opKeypair = "keypair"
	opSign    = "sign"
	opVerify  = "verify"
	opRelease = "release"
	opExport  = "export"
	opClose   = "close"
)

var engineIDs atomic.Uint64

// Engine marshals calls into one foreign module instance. All methods are
// safe for concurrent use; calls are serialized because the foreign module is
// not reentrant.
type Engine struct {
	mu sync.Mutex

	id      uint64
	foreign Foreign
	params  Params
	zeroize bool
	log     logging.Logger

	keys   map[uint32]keyEntry
	serial uint64
	closed bool
}

// Open binds an Engine to an already-initialized foreign module. It fails with
// ErrParamsMismatch when the module reports a parameter set different from
// cfg.Params.
func Open(f Foreign, cfg Config) (*Engine, error) {
	if f == nil {
		return nil, ErrNilForeign
	}
	cfg = cfg.withDefaults()
	if err := cfg.Params.validate(); err != nil {
		return nil, err
	}
	if r, ok := f.(ParamsReporter); ok {
		if got := r.Params(); got != cfg.Params {
			return nil, fmt.Errorf("%w: configured %s, module implements %s", ErrParamsMismatch, cfg.Params, got)
		}
	}

	id := engineIDs.Add(1)
	return &Engine{
		id:      id,
		foreign: f,
		params:  cfg.Params,
		zeroize: cfg.EnableZeroization,
		log:     cfg.Logger.With("engine", id, "params", cfg.Params.Name),
		keys:    make(map[uint32]keyEntry),
	}, nil
}

// Params returns the parameter set the engine was opened with.
func (e *Engine) Params() Params {
	return e.params
}

// LiveHandles returns the number of key regions generated by this engine and
// not yet released.
func (e *Engine) LiveHandles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.keys)
}

// Close releases every key region that is still live and marks the engine
// closed. A second call frees nothing and returns ErrEngineClosed. The foreign
// module itself is left untouched; its owner closes it.
func (e *Engine) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrEngineClosed
	}
	e.closed = true

	var errs []error
	for addr, entry := range e.keys {
		if err := e.freeRegion(ctx, addr, entry.size, entry.role == roleSecret); err != nil {
			errs = append(errs, err)
		}
		delete(e.keys, addr)
	}
	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", ErrRelease, errors.Join(errs...))
		e.log.Warn(ctx, "releasing live keys on close failed", "error", err)
		return &Error{Op: opClose, Err: err}
	}
	return nil
}

// acquire locks the engine for one marshaling call. The caller must unlock.
func (e *Engine) acquire() error {
	if e == nil {
		return ErrEngineClosed
	}
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	return nil
}

// register records a freshly generated key region and returns its reference.
func (e *Engine) register(addr uint32, role keyRole, size uint32) keyRef {
	e.serial++
	e.keys[addr] = keyEntry{role: role, size: size, serial: e.serial}
	return keyRef{engine: e.id, addr: addr, serial: e.serial}
}

// lookup validates that ref names a live key of the given role owned by e.
func (e *Engine) lookup(ref keyRef, role keyRole) (keyEntry, error) {
	if ref.engine != e.id {
		return keyEntry{}, fmt.Errorf("%w: %s was not issued by this engine", ErrInvalidHandle, role)
	}
	entry, ok := e.keys[ref.addr]
	if !ok || entry.serial != ref.serial {
		return keyEntry{}, fmt.Errorf("%w: %s has been released", ErrInvalidHandle, role)
	}
	if entry.role != role {
		return keyEntry{}, fmt.Errorf("%w: handle is a %s, want %s", ErrInvalidHandle, entry.role, role)
	}
	return entry, nil
}

// freeRegion optionally wipes a region and hands it back to the foreign
// allocator. The free is attempted even when the wipe fails.
func (e *Engine) freeRegion(ctx context.Context, addr, size uint32, wipe bool) error {
	var wipeErr error
	if wipe && size > 0 {
		if !e.foreign.Memory().Write(addr, make([]byte, size)) {
			wipeErr = fmt.Errorf("%w: wiping %d bytes at %d", ErrMemoryAccess, size, addr)
		}
	}
	if err := e.foreign.Free(ctx, addr); err != nil {
		return errors.Join(wipeErr, wrapForeign("free", err))
	}
	return wipeErr
}

// readOwned copies n bytes out of foreign memory into a new Go buffer.
func (e *Engine) readOwned(addr, n uint32) ([]byte, error) {
	view, ok := e.foreign.Memory().Read(addr, n)
	if !ok {
		return nil, fmt.Errorf("%w: reading %d bytes at %d", ErrMemoryAccess, n, addr)
	}
	out := make([]byte, n)
	copy(out, view)
	return out, nil
}

func size32(n int) (uint32, error) {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes", ErrTooLarge, n)
	}
	return uint32(n), nil
}
