package dilithium

import (
	"context"
	"errors"
	"fmt"
)

// scratch is a transient foreign region owned by one marshaling call.
type scratch struct {
	addr   uint32
	size   uint32
	region string
}

// arena tracks every region acquired during one marshaling call. The caller
// defers release right after creating it; detach hands the regions over to
// the caller instead (used for key generation).
type arena struct {
	e       *Engine
	ctx     context.Context
	op      string
	regions []scratch
}

func (e *Engine) newArena(ctx context.Context, op string) *arena {
	return &arena{e: e, ctx: ctx, op: op}
}

// alloc acquires one region. A zero address from the allocator becomes an
// AllocationError; nothing is recorded in that case.
func (a *arena) alloc(region string, size uint32) (scratch, error) {
	addr, err := a.e.foreign.Malloc(a.ctx, size)
	if err != nil {
		return scratch{}, &AllocationError{Op: a.op, Region: region, Size: size, Err: wrapForeign("malloc", err)}
	}
	if addr == 0 {
		return scratch{}, &AllocationError{Op: a.op, Region: region, Size: size}
	}
	s := scratch{addr: addr, size: size, region: region}
	a.regions = append(a.regions, s)
	return s, nil
}

// write copies b verbatim to the start of s.
func (a *arena) write(s scratch, b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if uint64(len(b)) > uint64(s.size) {
		return &Error{Op: a.op, Err: fmt.Errorf("%w: %d bytes into %d-byte %s region", ErrMemoryAccess, len(b), s.size, s.region)}
	}
	if !a.e.foreign.Memory().Write(s.addr, b) {
		return &Error{Op: a.op, Err: fmt.Errorf("%w: writing %s region at %d", ErrMemoryAccess, s.region, s.addr)}
	}
	return nil
}

// detach transfers ownership of every acquired region to the caller.
func (a *arena) detach() {
	a.regions = nil
}

// release frees every region still owned by the arena, newest first. A failed
// free does not stop the remaining ones.
func (a *arena) release() error {
	var errs []error
	for i := len(a.regions) - 1; i >= 0; i-- {
		s := a.regions[i]
		if err := a.e.freeRegion(a.ctx, s.addr, s.size, a.e.zeroize); err != nil {
			errs = append(errs, fmt.Errorf("%s region: %w", s.region, err))
		}
	}
	a.regions = nil
	if len(errs) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %w", ErrRelease, errors.Join(errs...))
	a.e.log.Warn(a.ctx, "releasing scratch failed", "op", a.op, "error", err)
	return &Error{Op: a.op, Err: err}
}
