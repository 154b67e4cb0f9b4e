package dilithium

type keyRole uint8

const (
	rolePublic keyRole = iota + 1
	roleSecret
)

func (r keyRole) String() string {
	switch r {
	case rolePublic:
		return "public key"
	case roleSecret:
		return "secret key"
	default:
		return "unknown"
	}
}

// keyRef identifies one key region. serial distinguishes a released handle
// from a newer one that the allocator placed at the same address.
type keyRef struct {
	engine uint64
	addr   uint32
	serial uint64
}

// PublicKey is a handle to a public key living in foreign memory. The zero
// value is not a valid handle.
type PublicKey struct {
	ref keyRef
}

// Addr returns the foreign address of the key region, for diagnostics.
func (k PublicKey) Addr() uint32 { return k.ref.addr }

// IsZero reports whether k is the zero handle.
func (k PublicKey) IsZero() bool { return k.ref == keyRef{} }

// SecretKey is a handle to a secret key living in foreign memory. The zero
// value is not a valid handle.
type SecretKey struct {
	ref keyRef
}

// Addr returns the foreign address of the key region, for diagnostics.
func (k SecretKey) Addr() uint32 { return k.ref.addr }

// IsZero reports whether k is the zero handle.
func (k SecretKey) IsZero() bool { return k.ref == keyRef{} }

// KeyPair bundles the two handles produced by GenerateKeyPair.
type KeyPair struct {
	Public PublicKey
	Secret SecretKey
}

// keyEntry is the registry record of a live key region.
type keyEntry struct {
	role   keyRole
	size   uint32
	serial uint64
}
