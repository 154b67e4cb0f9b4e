package wasmmod

import (
	"context"
	"errors"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
)

var (
	// ErrMissingExport indicates the module does not export a required
	// function.
	ErrMissingExport = errors.New("wasmmod: missing export")

	// ErrNoMemory indicates the module neither defines nor exports a memory.
	ErrNoMemory = errors.New("wasmmod: module has no memory")

	// ErrResultArity indicates an export returned an unexpected number of
	// results.
	ErrResultArity = errors.New("wasmmod: unexpected result count")
)

const versionMaxLen = 64

var (
	_ dilithium.Foreign         = (*Module)(nil)
	_ dilithium.VersionReporter = (*Module)(nil)
)

// Exports names the functions the adapter calls. Version is optional.
type Exports struct {
	Malloc  string
	Free    string
	Keypair string
	Sign    string
	Verify  string
	Version string
}

// DefaultExports returns the export names of the Emscripten wrapper build.
func DefaultExports() Exports {
	return Exports{
		Malloc:  "malloc",
		Free:    "free",
		Keypair: "crypto_sign_keypair_wrapper",
		Sign:    "crypto_sign_wrapper",
		Verify:  "crypto_verify_wrapper",
		Version: "dilithium_version",
	}
}

func (e Exports) withDefaults() Exports {
	d := DefaultExports()
	if e.Malloc == "" {
		e.Malloc = d.Malloc
	}
	if e.Free == "" {
		e.Free = d.Free
	}
	if e.Keypair == "" {
		e.Keypair = d.Keypair
	}
	if e.Sign == "" {
		e.Sign = d.Sign
	}
	if e.Verify == "" {
		e.Verify = d.Verify
	}
	if e.Version == "" {
		e.Version = d.Version
	}
	return e
}

// function is the part of api.Function the adapter uses.
type function interface {
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Module implements dilithium.Foreign over an instantiated wazero module.
// Like the module itself it must not be called concurrently; dilithium.Engine
// takes care of that.
type Module struct {
	mem dilithium.Memory

	malloc  function
	free    function
	keypair function
	sign    function
	verify  function
	version function

	close func(context.Context) error
}

// New wraps an instantiated module. Zero-valued fields of exports fall back
// to DefaultExports.
func New(mod api.Module, exports Exports) (*Module, error) {
	if mod == nil {
		return nil, errors.New("wasmmod: nil module")
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, ErrNoMemory
	}
	exports = exports.withDefaults()

	lookup := func(name string) function {
		if fn := mod.ExportedFunction(name); fn != nil {
			return fn
		}
		return nil
	}
	m := &Module{
		mem:     mem,
		malloc:  lookup(exports.Malloc),
		free:    lookup(exports.Free),
		keypair: lookup(exports.Keypair),
		sign:    lookup(exports.Sign),
		verify:  lookup(exports.Verify),
		version: lookup(exports.Version),
	}

	required := []struct {
		name string
		fn   function
	}{
		{exports.Malloc, m.malloc},
		{exports.Free, m.free},
		{exports.Keypair, m.keypair},
		{exports.Sign, m.sign},
		{exports.Verify, m.verify},
	}
	for _, r := range required {
		if r.fn == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingExport, r.name)
		}
	}
	return m, nil
}

// Close releases the wazero runtime when the module was created by Load. It
// is a no-op for modules wrapped with New.
func (m *Module) Close(ctx context.Context) error {
	if m == nil || m.close == nil {
		return nil
	}
	closeFn := m.close
	m.close = nil
	return closeFn(ctx)
}

// Memory implements dilithium.Foreign.
func (m *Module) Memory() dilithium.Memory {
	return m.mem
}

// Malloc implements dilithium.Foreign.
func (m *Module) Malloc(ctx context.Context, size uint32) (uint32, error) {
	res, err := call1(ctx, m.malloc, "malloc", api.EncodeU32(size))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res), nil
}

// Free implements dilithium.Foreign.
func (m *Module) Free(ctx context.Context, addr uint32) error {
	_, err := m.free.Call(ctx, api.EncodeU32(addr))
	return err
}

// Keypair implements dilithium.Foreign.
func (m *Module) Keypair(ctx context.Context, pk, sk uint32) (int32, error) {
	return status(call1(ctx, m.keypair, "keypair", api.EncodeU32(pk), api.EncodeU32(sk)))
}

// Sign implements dilithium.Foreign.
func (m *Module) Sign(ctx context.Context, sig, sigLenOut, msg, msgLen, sk uint32) (int32, error) {
	return status(call1(ctx, m.sign, "sign",
		api.EncodeU32(sig),
		api.EncodeU32(sigLenOut),
		api.EncodeU32(msg),
		api.EncodeU32(msgLen),
		api.EncodeU32(sk),
	))
}

// Verify implements dilithium.Foreign.
func (m *Module) Verify(ctx context.Context, sig, sigLen, msg, msgLen, pk uint32) (int32, error) {
	return status(call1(ctx, m.verify, "verify",
		api.EncodeU32(sig),
		api.EncodeU32(sigLen),
		api.EncodeU32(msg),
		api.EncodeU32(msgLen),
		api.EncodeU32(pk),
	))
}

// Version implements dilithium.VersionReporter. The export returns a pointer
// to a NUL-terminated string in static memory. Modules without the export
// report an empty version.
func (m *Module) Version(ctx context.Context) (string, error) {
	if m.version == nil {
		return "", nil
	}
	res, err := call1(ctx, m.version, "version")
	if err != nil {
		return "", err
	}
	ptr := api.DecodeU32(res)
	if ptr == 0 {
		return "", nil
	}
	var out []byte
	for i := uint32(0); i < versionMaxLen; i++ {
		b, ok := m.mem.Read(ptr+i, 1)
		if !ok || b[0] == 0 {
			break
		}
		out = append(out, b[0])
	}
	return string(out), nil
}

func call1(ctx context.Context, fn function, name string, params ...uint64) (uint64, error) {
	res, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, err
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("%w: %s returned %d values", ErrResultArity, name, len(res))
	}
	return res[0], nil
}

func status(v uint64, err error) (int32, error) {
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(v), nil
}
