package dilithium

import (
	"fmt"
	"strings"
)

// Params holds the fixed sizes of one ML-DSA parameter set. The values are part
// of the public contract and must match the foreign module exactly.
type Params struct {
	Name             string
	PublicKeySize    uint32
	SecretKeySize    uint32
	MaxSignatureSize uint32
}

// Standard parameter sets (FIPS 204). MLDSA44 is the Dilithium2 level and the
// default for Open.
var (
	MLDSA44 = Params{Name: "ML-DSA-44", PublicKeySize: 1312, SecretKeySize: 2560, MaxSignatureSize: 2420}
	MLDSA65 = Params{Name: "ML-DSA-65", PublicKeySize: 1952, SecretKeySize: 4032, MaxSignatureSize: 3309}
	MLDSA87 = Params{Name: "ML-DSA-87", PublicKeySize: 2592, SecretKeySize: 4896, MaxSignatureSize: 4627}
)

// ParamsByName resolves a parameter set by name. Matching ignores case, dashes
// and underscores, and accepts the round-3 Dilithium names as aliases.
func ParamsByName(name string) (Params, error) {
	key := strings.ToLower(name)
	key = strings.NewReplacer("-", "", "_", "").Replace(key)
	switch key {
	case "mldsa44", "dilithium2":
		return MLDSA44, nil
	case "mldsa65", "dilithium3":
		return MLDSA65, nil
	case "mldsa87", "dilithium5":
		return MLDSA87, nil
	default:
		return Params{}, fmt.Errorf("%w: %q", ErrUnknownParams, name)
	}
}

func (p Params) String() string {
	if p.Name == "" {
		return "unknown"
	}
	return p.Name
}

// IsZero reports whether p is the zero value.
func (p Params) IsZero() bool {
	return p == Params{}
}

func (p Params) validate() error {
	if p.PublicKeySize == 0 || p.SecretKeySize == 0 || p.MaxSignatureSize == 0 {
		return fmt.Errorf("%w: %s has zero-sized fields", ErrUnknownParams, p)
	}
	return nil
}
