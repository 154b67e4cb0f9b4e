package dilithium

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const lengthCellSize = 4

// Sign signs msg with the secret key behind sk and returns the signature as a
// new buffer owned by the caller. msg may be empty. The signature length is
// whatever the foreign module reports and never exceeds MaxSignatureSize.
func (e *Engine) Sign(ctx context.Context, msg []byte, sk SecretKey) (sig []byte, err error) {
	if err := e.acquire(); err != nil {
		return nil, &Error{Op: opSign, Err: err}
	}
	defer e.mu.Unlock()

	if _, err := e.lookup(sk.ref, roleSecret); err != nil {
		return nil, &Error{Op: opSign, Err: err}
	}
	msgLen, err := size32(len(msg))
	if err != nil {
		return nil, &Error{Op: opSign, Err: err}
	}

	start := time.Now()
	a := e.newArena(ctx, opSign)
	defer func() {
		if rerr := a.release(); rerr != nil {
			sig = nil
			err = errors.Join(err, rerr)
		}
	}()

	msgRegion, err := a.alloc("message", msgLen)
	if err != nil {
		return nil, err
	}
	sigRegion, err := a.alloc("signature", e.params.MaxSignatureSize)
	if err != nil {
		return nil, err
	}
	lenCell, err := a.alloc("signature length", lengthCellSize)
	if err != nil {
		return nil, err
	}

	if err := a.write(msgRegion, msg); err != nil {
		return nil, err
	}

	status, n, err := e.invokeSign(ctx, sigRegion, lenCell, msgRegion, sk.ref.addr)
	if err != nil {
		return nil, &SigningError{Status: status, Err: err}
	}
	if status != 0 {
		e.log.Debug(ctx, "foreign sign failed", "status", status)
		return nil, &SigningError{Status: status}
	}
	if n > e.params.MaxSignatureSize {
		return nil, &SigningError{Err: fmt.Errorf("%w: %d > %d", ErrSignatureLength, n, e.params.MaxSignatureSize)}
	}

	sig, err = e.readOwned(sigRegion.addr, n)
	if err != nil {
		return nil, &Error{Op: opSign, Err: err}
	}

	e.log.Debug(ctx, "signed message",
		"message_len", msgLen,
		"signature_len", n,
		"duration", time.Since(start),
	)
	return sig, nil
}

// invokeSign runs the foreign sign export and reads the signature length it
// reported. The length cell is cleared first so a module that forgets to set
// it yields an empty signature rather than stale scratch contents.
func (e *Engine) invokeSign(ctx context.Context, sig, lenCell, msg scratch, sk uint32) (int32, uint32, error) {
	mem := e.foreign.Memory()
	if !mem.Write(lenCell.addr, make([]byte, lengthCellSize)) {
		return 0, 0, fmt.Errorf("%w: clearing length cell at %d", ErrMemoryAccess, lenCell.addr)
	}

	status, err := e.foreign.Sign(ctx, sig.addr, lenCell.addr, msg.addr, msg.size, sk)
	if err != nil {
		return status, 0, wrapForeign("sign", err)
	}
	if status != 0 {
		return status, 0, nil
	}

	n, ok := mem.ReadUint32Le(lenCell.addr)
	if !ok {
		return status, 0, fmt.Errorf("%w: reading length cell at %d", ErrMemoryAccess, lenCell.addr)
	}
	return status, n, nil
}
