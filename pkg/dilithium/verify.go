package dilithium

import (
	"context"
	"errors"
	"time"
)

// Verify reports whether sig is a valid signature of msg under the public key
// behind pk. An invalid signature is (false, nil); an error is returned only
// when the call could not be carried out.
func (e *Engine) Verify(ctx context.Context, sig, msg []byte, pk PublicKey) (valid bool, err error) {
	if err := e.acquire(); err != nil {
		return false, &Error{Op: opVerify, Err: err}
	}
	defer e.mu.Unlock()

	if _, err := e.lookup(pk.ref, rolePublic); err != nil {
		return false, &Error{Op: opVerify, Err: err}
	}
	sigLen, err := size32(len(sig))
	if err != nil {
		return false, &Error{Op: opVerify, Err: err}
	}
	msgLen, err := size32(len(msg))
	if err != nil {
		return false, &Error{Op: opVerify, Err: err}
	}

	start := time.Now()
	a := e.newArena(ctx, opVerify)
	defer func() {
		if rerr := a.release(); rerr != nil {
			valid = false
			err = errors.Join(err, rerr)
		}
	}()

	sigRegion, err := a.alloc("signature", sigLen)
	if err != nil {
		return false, err
	}
	msgRegion, err := a.alloc("message", msgLen)
	if err != nil {
		return false, err
	}
	if err := a.write(sigRegion, sig); err != nil {
		return false, err
	}
	if err := a.write(msgRegion, msg); err != nil {
		return false, err
	}

	status, err := e.foreign.Verify(ctx, sigRegion.addr, sigLen, msgRegion.addr, msgLen, pk.ref.addr)
	if err != nil {
		return false, &Error{Op: opVerify, Err: wrapForeign("verify", err)}
	}

	e.log.Debug(ctx, "verified signature",
		"signature_len", sigLen,
		"message_len", msgLen,
		"status", status,
		"duration", time.Since(start),
	)
	return status == 0, nil
}
