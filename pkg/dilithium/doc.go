// Package dilithium exposes a memory-safe Go API for ML-DSA (CRYSTALS-Dilithium)
// key generation, signing and verification on top of a foreign module that
// only understands flat linear memory addressed by integer offsets and integer
// status codes.
//
// The foreign module is any value implementing Foreign: a WebAssembly build of
// the reference implementation (see package wasmmod), or the in-process
// software module used by tests and the CLI (see package softmod). An Engine
// wraps exactly one foreign module instance:
//
//	eng, err := dilithium.Open(foreign, dilithium.Config{Params: dilithium.MLDSA44})
//	if err != nil {
//	    return err
//	}
//	defer eng.Close(ctx)
//
//	kp, err := eng.GenerateKeyPair(ctx)
//	if err != nil {
//	    return err
//	}
//	defer eng.ReleaseKeyPair(ctx, kp)
//
//	sig, err := eng.Sign(ctx, dilithium.Text("hello"), kp.Secret)
//	ok, err := eng.Verify(ctx, sig, dilithium.Text("hello"), kp.Public)
//
// # Memory discipline
//
// Every call runs the same linear sequence: allocate scratch regions in foreign
// memory, copy inputs in, invoke the foreign export, copy results out into
// Go-owned buffers, release. Release is deferred as soon as the scratch arena
// exists, so it runs on success, on error and on panic. Slices returned to the
// caller never alias foreign memory.
//
// Key handles (PublicKey, SecretKey) are addresses into foreign memory owned by
// the caller. They stay valid until ReleasePublicKey, ReleaseSecretKey,
// ReleaseKeyPair or Engine.Close frees them; Sign and Verify never free them.
//
// # Concurrency
//
// The foreign module is single-threaded and not reentrant. An Engine serializes
// all calls against its module with a mutex, so it is safe for concurrent use;
// callers that need parallelism should open several Engines over separate
// module instances.
package dilithium
