// Package wasmmod adapts a WebAssembly build of the ML-DSA reference
// implementation, instantiated with wazero, to dilithium.Foreign.
//
// The expected exports follow the Emscripten wrapper of the pqcrystals
// reference code: malloc, free, crypto_sign_keypair_wrapper,
// crypto_sign_wrapper and crypto_verify_wrapper. Other names can be mapped
// through Exports.
//
// Load compiles and instantiates a module from bytes with WASI and the
// Emscripten host functions. New wraps a module the caller instantiated
// itself.
package wasmmod
