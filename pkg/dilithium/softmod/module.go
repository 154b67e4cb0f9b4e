package softmod

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/cloudflare/circl/sign/mldsa/mldsa65"
	"github.com/cloudflare/circl/sign/mldsa/mldsa87"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
)

// Status codes returned by the signature exports.
const (
	StatusOK               int32 = 0
	StatusInvalidSignature int32 = -1
	StatusBadAddress       int32 = -2
	StatusMalformedKey     int32 = -3
	StatusInternal         int32 = -4
)

// DefaultMemorySize is the linear memory size used when Options.MemorySize is
// zero.
const DefaultMemorySize = 1 << 20

var (
	_ dilithium.Foreign         = (*Module)(nil)
	_ dilithium.ParamsReporter  = (*Module)(nil)
	_ dilithium.VersionReporter = (*Module)(nil)
	_ dilithium.Memory          = (*memory)(nil)
)

// Options configures a Module.
type Options struct {
	// Params selects the ML-DSA parameter set. Zero selects MLDSA44.
	Params dilithium.Params
	// MemorySize is the size of the linear memory in bytes.
	MemorySize uint32
	// Rand supplies key generation seeds. Nil uses crypto/rand.
	Rand io.Reader
}

// Module is a software implementation of dilithium.Foreign. Like the
// WebAssembly module it stands in for, it is not meant to be called
// concurrently; Overlaps counts the calls that were.
type Module struct {
	params dilithium.Params
	scheme sign.Scheme
	rand   io.Reader
	mem    *memory

	heapMu sync.Mutex
	heap   *heap

	faults faults

	active   atomic.Int32
	overlaps atomic.Int64
	calls    [opCount]atomic.Int64
}

// New creates a Module with a fresh, zeroed linear memory.
func New(opts Options) (*Module, error) {
	if opts.Params.IsZero() {
		opts.Params = dilithium.MLDSA44
	}
	if opts.MemorySize == 0 {
		opts.MemorySize = DefaultMemorySize
	}
	if opts.Rand == nil {
		opts.Rand = rand.Reader
	}
	scheme, err := schemeFor(opts.Params)
	if err != nil {
		return nil, err
	}
	return &Module{
		params: opts.Params,
		scheme: scheme,
		rand:   opts.Rand,
		mem:    &memory{buf: make([]byte, opts.MemorySize)},
		heap:   newHeap(opts.MemorySize),
	}, nil
}

func schemeFor(p dilithium.Params) (sign.Scheme, error) {
	var s sign.Scheme
	switch p.Name {
	case dilithium.MLDSA44.Name:
		s = mldsa44.Scheme()
	case dilithium.MLDSA65.Name:
		s = mldsa65.Scheme()
	case dilithium.MLDSA87.Name:
		s = mldsa87.Scheme()
	default:
		return nil, fmt.Errorf("softmod: %w: %s", dilithium.ErrUnknownParams, p)
	}
	if uint32(s.PublicKeySize()) != p.PublicKeySize ||
		uint32(s.PrivateKeySize()) != p.SecretKeySize ||
		uint32(s.SignatureSize()) != p.MaxSignatureSize {
		return nil, fmt.Errorf("softmod: %w: %s sizes differ from %s", dilithium.ErrParamsMismatch, p, s.Name())
	}
	return s, nil
}

// Params implements dilithium.ParamsReporter.
func (m *Module) Params() dilithium.Params {
	return m.params
}

// Version implements dilithium.VersionReporter.
func (m *Module) Version(context.Context) (string, error) {
	return "softmod/" + m.scheme.Name(), nil
}

// Memory implements dilithium.Foreign.
func (m *Module) Memory() dilithium.Memory {
	return m.mem
}

// Outstanding returns the number of live allocations.
func (m *Module) Outstanding() int {
	m.heapMu.Lock()
	defer m.heapMu.Unlock()
	return m.heap.outstanding()
}

// Overlaps returns how many export calls started while another was running.
func (m *Module) Overlaps() int64 {
	return m.overlaps.Load()
}

// Calls returns how many times op has been invoked.
func (m *Module) Calls(op Op) int64 {
	if op >= opCount {
		return 0
	}
	return m.calls[op].Load()
}

// enter runs the bookkeeping shared by every export and applies the faults
// armed for op. The returned function must be deferred.
func (m *Module) enter(op Op) (done func(), forced *int32, err error) {
	m.calls[op].Add(1)
	if m.active.Add(1) > 1 {
		m.overlaps.Add(1)
	}
	done = func() { m.active.Add(-1) }

	f := m.faults.take(op)
	if f.panicMsg != "" {
		done()
		panic(f.panicMsg)
	}
	if f.trap != nil {
		return done, nil, f.trap
	}
	return done, f.status, nil
}

// Malloc implements dilithium.Foreign.
func (m *Module) Malloc(_ context.Context, size uint32) (uint32, error) {
	done, _, err := m.enter(OpMalloc)
	defer done()
	if err != nil {
		return 0, err
	}
	if m.faults.allocFails() {
		return 0, nil
	}

	m.heapMu.Lock()
	defer m.heapMu.Unlock()
	return m.heap.alloc(size), nil
}

// Free implements dilithium.Foreign. Freeing address 0 is a no-op.
func (m *Module) Free(_ context.Context, addr uint32) error {
	done, _, err := m.enter(OpFree)
	defer done()
	if err != nil {
		return err
	}
	if addr == 0 {
		return nil
	}

	m.heapMu.Lock()
	defer m.heapMu.Unlock()
	return m.heap.release(addr)
}

func (m *Module) inBounds(addr, n uint32) bool {
	m.heapMu.Lock()
	defer m.heapMu.Unlock()
	return m.heap.contains(addr, n)
}

// Keypair implements dilithium.Foreign.
func (m *Module) Keypair(_ context.Context, pkAddr, skAddr uint32) (int32, error) {
	done, forced, err := m.enter(OpKeypair)
	defer done()
	if err != nil {
		return 0, err
	}
	if forced != nil {
		return *forced, nil
	}
	if !m.inBounds(pkAddr, m.params.PublicKeySize) || !m.inBounds(skAddr, m.params.SecretKeySize) {
		return StatusBadAddress, nil
	}

	seed := make([]byte, m.scheme.SeedSize())
	defer dilithium.ZeroizeBytes(seed)
	if _, err := io.ReadFull(m.rand, seed); err != nil {
		return StatusInternal, nil
	}
	pk, sk := m.scheme.DeriveKey(seed)

	pkBytes, err := pk.MarshalBinary()
	if err != nil {
		return StatusInternal, nil
	}
	skBytes, err := sk.MarshalBinary()
	if err != nil {
		return StatusInternal, nil
	}
	defer dilithium.ZeroizeBytes(skBytes)

	if !m.mem.Write(pkAddr, pkBytes) || !m.mem.Write(skAddr, skBytes) {
		return StatusBadAddress, nil
	}
	return StatusOK, nil
}

// Sign implements dilithium.Foreign. On success the signature length is
// stored little-endian at sigLenOut.
func (m *Module) Sign(_ context.Context, sigAddr, sigLenOut, msgAddr, msgLen, skAddr uint32) (int32, error) {
	done, forced, err := m.enter(OpSign)
	defer done()
	if err != nil {
		return 0, err
	}
	if forced != nil {
		return *forced, nil
	}
	if !m.inBounds(sigAddr, m.params.MaxSignatureSize) ||
		!m.inBounds(sigLenOut, 4) ||
		!m.inBounds(msgAddr, msgLen) ||
		!m.inBounds(skAddr, m.params.SecretKeySize) {
		return StatusBadAddress, nil
	}

	skBytes, ok := m.mem.Read(skAddr, m.params.SecretKeySize)
	if !ok {
		return StatusBadAddress, nil
	}
	sk, err := m.scheme.UnmarshalBinaryPrivateKey(skBytes)
	if err != nil {
		return StatusMalformedKey, nil
	}
	msg, ok := m.mem.Read(msgAddr, msgLen)
	if !ok {
		return StatusBadAddress, nil
	}

	sig, status := m.sign(sk, msg)
	if status != StatusOK {
		return status, nil
	}

	n := uint32(len(sig))
	if forcedLen, ok := m.faults.takeSignatureLength(); ok {
		n = forcedLen
	}
	var cell [4]byte
	binary.LittleEndian.PutUint32(cell[:], n)
	if !m.mem.Write(sigAddr, sig) || !m.mem.Write(sigLenOut, cell[:]) {
		return StatusBadAddress, nil
	}
	return StatusOK, nil
}

// sign turns a circl panic into a status code, as a C implementation would
// report it.
func (m *Module) sign(sk sign.PrivateKey, msg []byte) (sig []byte, status int32) {
	defer func() {
		if r := recover(); r != nil {
			sig, status = nil, StatusInternal
		}
	}()
	return m.scheme.Sign(sk, msg, nil), StatusOK
}

// Verify implements dilithium.Foreign.
func (m *Module) Verify(_ context.Context, sigAddr, sigLen, msgAddr, msgLen, pkAddr uint32) (int32, error) {
	done, forced, err := m.enter(OpVerify)
	defer done()
	if err != nil {
		return 0, err
	}
	if forced != nil {
		return *forced, nil
	}
	if !m.inBounds(sigAddr, sigLen) ||
		!m.inBounds(msgAddr, msgLen) ||
		!m.inBounds(pkAddr, m.params.PublicKeySize) {
		return StatusBadAddress, nil
	}

	pkBytes, ok := m.mem.Read(pkAddr, m.params.PublicKeySize)
	if !ok {
		return StatusBadAddress, nil
	}
	pk, err := m.scheme.UnmarshalBinaryPublicKey(pkBytes)
	if err != nil {
		return StatusMalformedKey, nil
	}
	if sigLen != m.params.MaxSignatureSize {
		return StatusInvalidSignature, nil
	}
	sig, _ := m.mem.Read(sigAddr, sigLen)
	msg, _ := m.mem.Read(msgAddr, msgLen)
	if !m.scheme.Verify(pk, msg, sig, nil) {
		return StatusInvalidSignature, nil
	}
	return StatusOK, nil
}

// memory is the linear memory of a Module. Accesses are bounds-checked
// against the whole memory, not against allocations.
type memory struct {
	buf []byte
}

func (m *memory) inRange(offset, n uint32) bool {
	return uint64(offset)+uint64(n) <= uint64(len(m.buf))
}

func (m *memory) Read(offset, byteCount uint32) ([]byte, bool) {
	if !m.inRange(offset, byteCount) {
		return nil, false
	}
	return m.buf[offset : offset+byteCount : offset+byteCount], true
}

func (m *memory) Write(offset uint32, v []byte) bool {
	if uint64(len(v)) > uint64(^uint32(0)) || !m.inRange(offset, uint32(len(v))) {
		return false
	}
	copy(m.buf[offset:], v)
	return true
}

func (m *memory) ReadUint32Le(offset uint32) (uint32, bool) {
	if !m.inRange(offset, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), true
}

// ErrTrap is a convenient error for TrapOnNext.
var ErrTrap = errors.New("softmod: trap")
