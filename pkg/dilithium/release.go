package dilithium

import (
	"context"
	"errors"
	"fmt"
)

// ReleasePublicKey frees the public key region behind pk. The handle is
// invalid afterwards.
func (e *Engine) ReleasePublicKey(ctx context.Context, pk PublicKey) error {
	if err := e.acquire(); err != nil {
		return &Error{Op: opRelease, Err: err}
	}
	defer e.mu.Unlock()
	return e.release(ctx, pk.ref, rolePublic)
}

// ReleaseSecretKey frees the secret key region behind sk, zeroizing it first
// when the engine was opened with EnableZeroization. The handle is invalid
// afterwards.
func (e *Engine) ReleaseSecretKey(ctx context.Context, sk SecretKey) error {
	if err := e.acquire(); err != nil {
		return &Error{Op: opRelease, Err: err}
	}
	defer e.mu.Unlock()
	return e.release(ctx, sk.ref, roleSecret)
}

// ReleaseKeyPair releases both halves of kp. Both are attempted even when the
// first fails.
func (e *Engine) ReleaseKeyPair(ctx context.Context, kp KeyPair) error {
	if err := e.acquire(); err != nil {
		return &Error{Op: opRelease, Err: err}
	}
	defer e.mu.Unlock()
	return errors.Join(
		e.release(ctx, kp.Secret.ref, roleSecret),
		e.release(ctx, kp.Public.ref, rolePublic),
	)
}

func (e *Engine) release(ctx context.Context, ref keyRef, role keyRole) error {
	entry, err := e.lookup(ref, role)
	if err != nil {
		return &Error{Op: opRelease, Err: err}
	}
	delete(e.keys, ref.addr)

	wipe := role == roleSecret && e.zeroize
	if err := e.freeRegion(ctx, ref.addr, entry.size, wipe); err != nil {
		err = fmt.Errorf("%w: %w", ErrRelease, err)
		e.log.Warn(ctx, "releasing key failed", "role", role.String(), "error", err)
		return &Error{Op: opRelease, Err: err}
	}
	e.log.Debug(ctx, "released key", "role", role.String(), "addr", ref.addr)
	return nil
}

// PublicKeyBytes returns a copy of the encoded public key behind pk.
func (e *Engine) PublicKeyBytes(ctx context.Context, pk PublicKey) ([]byte, error) {
	if err := e.acquire(); err != nil {
		return nil, &Error{Op: opExport, Err: err}
	}
	defer e.mu.Unlock()

	entry, err := e.lookup(pk.ref, rolePublic)
	if err != nil {
		return nil, &Error{Op: opExport, Err: err}
	}
	out, err := e.readOwned(pk.ref.addr, entry.size)
	if err != nil {
		return nil, &Error{Op: opExport, Err: err}
	}
	return out, nil
}
