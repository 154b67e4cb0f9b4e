package dilithium

import "context"

// Memory is a byte-addressable view over the foreign module's linear memory.
// The method set matches wazero's api.Memory. Slices returned by Read may alias
// foreign memory and are only valid until the next foreign call.
type Memory interface {
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	ReadUint32Le(offset uint32) (uint32, bool)
}

// Foreign is the contract of an already-initialized foreign signature module.
//
// Malloc returns 0 when the allocator has no room; a non-nil error means the
// call itself failed (for example a WebAssembly trap). The signature exports
// return 0 on success; for Verify any other status means "not valid".
//
// Implementations are not expected to be safe for concurrent use. Engine
// serializes every call.
type Foreign interface {
	Malloc(ctx context.Context, size uint32) (uint32, error)
	Free(ctx context.Context, addr uint32) error
	Keypair(ctx context.Context, publicKey, secretKey uint32) (int32, error)
	Sign(ctx context.Context, sig, sigLenOut, msg, msgLen, secretKey uint32) (int32, error)
	Verify(ctx context.Context, sig, sigLen, msg, msgLen, publicKey uint32) (int32, error)
	Memory() Memory
}

// ParamsReporter is implemented by foreign modules that know which parameter
// set they were built for. Open uses it to reject a mismatched Config.
type ParamsReporter interface {
	Params() Params
}

// VersionReporter is implemented by foreign modules that can describe their
// build.
type VersionReporter interface {
	Version(ctx context.Context) (string, error)
}
