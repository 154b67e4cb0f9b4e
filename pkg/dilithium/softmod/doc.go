// Package softmod is an in-process foreign module for package dilithium.
//
// It models what a WebAssembly build of the ML-DSA reference implementation
// looks like from the outside: one flat linear memory, a malloc/free allocator
// over it, and keypair/sign/verify exports that take integer addresses and
// return integer status codes. The cryptography is done by
// github.com/cloudflare/circl.
//
// Besides serving as the default module of the CLI, it is the test double for
// the marshaling layer: fault injection (failing allocations, forced status
// codes, forced signature lengths, panics, traps) and introspection
// (outstanding allocations, overlapping calls) let tests assert the memory and
// concurrency guarantees of dilithium.Engine.
package softmod
