package dilithium

import (
	"context"
	"errors"
	"time"
)

// GenerateKeyPair asks the foreign module for a fresh key pair. The key bytes
// stay in foreign memory; the returned handles remain valid until they are
// released or the engine is closed.
//
// Allocation failures return an *AllocationError without calling the foreign
// module. A non-zero foreign status returns a *GenerationError. In both cases
// every region allocated by the call has already been freed.
func (e *Engine) GenerateKeyPair(ctx context.Context) (kp KeyPair, err error) {
	if err := e.acquire(); err != nil {
		return KeyPair{}, &Error{Op: opKeypair, Err: err}
	}
	defer e.mu.Unlock()

	start := time.Now()
	a := e.newArena(ctx, opKeypair)
	defer func() {
		if rerr := a.release(); rerr != nil {
			kp = KeyPair{}
			err = errors.Join(err, rerr)
		}
	}()

	pk, err := a.alloc("public key", e.params.PublicKeySize)
	if err != nil {
		return KeyPair{}, err
	}
	sk, err := a.alloc("secret key", e.params.SecretKeySize)
	if err != nil {
		return KeyPair{}, err
	}

	status, err := e.foreign.Keypair(ctx, pk.addr, sk.addr)
	if err != nil {
		return KeyPair{}, &GenerationError{Err: wrapForeign("keypair", err)}
	}
	if status != 0 {
		e.log.Debug(ctx, "foreign keypair failed", "status", status)
		return KeyPair{}, &GenerationError{Status: status}
	}

	kp = KeyPair{
		Public: PublicKey{ref: e.register(pk.addr, rolePublic, pk.size)},
		Secret: SecretKey{ref: e.register(sk.addr, roleSecret, sk.size)},
	}
	a.detach()

	var fp string
	if b, ok := e.foreign.Memory().Read(pk.addr, pk.size); ok {
		fp = Fingerprint(b)
	}
	e.log.Debug(ctx, "generated key pair",
		"public_fp", fp,
		"public_addr", pk.addr,
		"secret_addr", sk.addr,
		"duration", time.Since(start),
	)
	return kp, nil
}
