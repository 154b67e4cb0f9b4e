// Command dilithium-go drives the ML-DSA marshaling layer from the command
// line: a scenario demo, a sign/verify round trip and version reporting. It
// runs against the in-process software module unless --wasm points at a
// WebAssembly build of the reference implementation.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
