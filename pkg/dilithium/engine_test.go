package dilithium_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/cloudflare/circl/sign/mldsa/mldsa44"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqwasm/dilithium-go/pkg/dilithium"
	"github.com/pqwasm/dilithium-go/pkg/dilithium/logging"
	"github.com/pqwasm/dilithium-go/pkg/dilithium/softmod"
)

func newEngine(t *testing.T, cfg dilithium.Config) (*dilithium.Engine, *softmod.Module) {
	t.Helper()
	soft, err := softmod.New(softmod.Options{Params: cfg.Params})
	require.NoError(t, err)
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	eng, err := dilithium.Open(soft, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })
	return eng, soft
}

func generate(t *testing.T, eng *dilithium.Engine) dilithium.KeyPair {
	t.Helper()
	kp, err := eng.GenerateKeyPair(context.Background())
	require.NoError(t, err)
	return kp
}

func TestOpenRejectsNilForeign(t *testing.T) {
	_, err := dilithium.Open(nil, dilithium.Config{})
	require.ErrorIs(t, err, dilithium.ErrNilForeign)
}

func TestOpenDefaultsToMLDSA44(t *testing.T) {
	eng, _ := newEngine(t, dilithium.Config{})
	assert.Equal(t, dilithium.MLDSA44, eng.Params())
}

func TestOpenRejectsParamsMismatch(t *testing.T) {
	soft, err := softmod.New(softmod.Options{Params: dilithium.MLDSA65})
	require.NoError(t, err)

	_, err = dilithium.Open(soft, dilithium.Config{Params: dilithium.MLDSA44})
	require.ErrorIs(t, err, dilithium.ErrParamsMismatch)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)

	cases := []struct {
		name string
		msg  []byte
	}{
		{"empty", []byte{}},
		{"text", dilithium.Text("Hello, Dilithium!")},
		{"binary", []byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe, 0xfd}},
		{"large", bytes.Repeat([]byte{0x2a}, 1000)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := eng.Sign(ctx, tc.msg, kp.Secret)
			require.NoError(t, err)
			require.NotEmpty(t, sig)
			require.LessOrEqual(t, len(sig), int(dilithium.MLDSA44.MaxSignatureSize))

			ok, err := eng.Verify(ctx, sig, tc.msg, kp.Public)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestRoundTripAllParams(t *testing.T) {
	ctx := context.Background()
	for _, p := range []dilithium.Params{dilithium.MLDSA44, dilithium.MLDSA65, dilithium.MLDSA87} {
		t.Run(p.Name, func(t *testing.T) {
			eng, _ := newEngine(t, dilithium.Config{Params: p})
			kp := generate(t, eng)

			sig, err := eng.Sign(ctx, dilithium.Text(p.Name), kp.Secret)
			require.NoError(t, err)
			assert.Len(t, sig, int(p.MaxSignatureSize))

			pub, err := eng.PublicKeyBytes(ctx, kp.Public)
			require.NoError(t, err)
			assert.Len(t, pub, int(p.PublicKeySize))

			ok, err := eng.Verify(ctx, sig, dilithium.Text(p.Name), kp.Public)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestEmptyMessageScenario(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)

	sig, err := eng.Sign(ctx, dilithium.Text(""), kp.Secret)
	require.NoError(t, err)
	require.NotEmpty(t, sig)
	require.LessOrEqual(t, len(sig), 2420)

	ok, err := eng.Verify(ctx, sig, dilithium.Text(""), kp.Public)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = eng.Verify(ctx, sig, dilithium.Text("x"), kp.Public)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTamperedSignatureRejected(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := dilithium.Text("Tamper test")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)

	for _, pos := range []int{0, 1, len(sig) / 3, len(sig) / 2, len(sig) - 2, len(sig) - 1} {
		tampered := append([]byte(nil), sig...)
		tampered[pos] ^= 0x01
		ok, err := eng.Verify(ctx, tampered, msg, kp.Public)
		require.NoError(t, err)
		assert.False(t, ok, "flipped bit at signature byte %d", pos)
	}
}

func TestTamperedMessageRejected(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := bytes.Repeat([]byte{0x2a}, 64)

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)

	for pos := range msg {
		tampered := append([]byte(nil), msg...)
		tampered[pos] ^= 0x80
		ok, err := eng.Verify(ctx, sig, tampered, kp.Public)
		require.NoError(t, err)
		assert.False(t, ok, "flipped bit at message byte %d", pos)
	}
}

func TestCrossKeyAndCrossMessageRejected(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	alice := generate(t, eng)
	bob := generate(t, eng)

	m1 := dilithium.Text("first message")
	m2 := dilithium.Text("second message")
	sig1, err := eng.Sign(ctx, m1, alice.Secret)
	require.NoError(t, err)

	ok, err := eng.Verify(ctx, sig1, m1, bob.Public)
	require.NoError(t, err)
	assert.False(t, ok, "signature verified under the wrong key")

	ok, err = eng.Verify(ctx, sig1, m2, alice.Public)
	require.NoError(t, err)
	assert.False(t, ok, "signature verified for the wrong message")
}

func TestVerifyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := dilithium.Text("again")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)
	before := soft.Outstanding()

	for i := 0; i < 3; i++ {
		ok, err := eng.Verify(ctx, sig, msg, kp.Public)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, before, soft.Outstanding())
}

func TestVerifyOversizedSignatureIsFalse(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := dilithium.Text("oversized")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)

	ok, err := eng.Verify(ctx, append(sig, 0), msg, kp.Public)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = eng.Verify(ctx, nil, msg, kp.Public)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSignatureIsStandardMLDSA(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := dilithium.Text("interop")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)
	raw, err := eng.PublicKeyBytes(ctx, kp.Public)
	require.NoError(t, err)

	var pub mldsa44.PublicKey
	require.NoError(t, pub.UnmarshalBinary(raw))
	assert.True(t, mldsa44.Verify(&pub, msg, nil, sig))
}

func TestSignatureLengthDiscovery(t *testing.T) {
	ctx := context.Background()
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	baseline := soft.Outstanding()

	soft.ForceSignatureLength(100)
	sig, err := eng.Sign(ctx, dilithium.Text("short"), kp.Secret)
	require.NoError(t, err)
	assert.Len(t, sig, 100)

	soft.ForceSignatureLength(dilithium.MLDSA44.MaxSignatureSize)
	sig, err = eng.Sign(ctx, dilithium.Text("exact"), kp.Secret)
	require.NoError(t, err)
	assert.Len(t, sig, int(dilithium.MLDSA44.MaxSignatureSize))

	soft.ForceSignatureLength(dilithium.MLDSA44.MaxSignatureSize + 1)
	sig, err = eng.Sign(ctx, dilithium.Text("too long"), kp.Secret)
	require.Error(t, err)
	assert.Nil(t, sig)
	assert.ErrorIs(t, err, dilithium.ErrSigning)
	assert.ErrorIs(t, err, dilithium.ErrSignatureLength)
	var se *dilithium.SigningError
	assert.ErrorAs(t, err, &se)

	assert.Equal(t, baseline, soft.Outstanding())
}

func TestSignReturnsOwnedBuffer(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := dilithium.Text("owned")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)
	kept := append([]byte(nil), sig...)

	// Later calls reuse the freed scratch regions.
	_, err = eng.Sign(ctx, dilithium.Text("other"), kp.Secret)
	require.NoError(t, err)
	assert.Equal(t, kept, sig)
}

func TestNoLeakOnAllocationFailure(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name   string
		allocs int
		op     softmod.Op
		run    func(eng *dilithium.Engine, kp dilithium.KeyPair, sig []byte) error
	}{
		{"keypair", 2, softmod.OpKeypair, func(eng *dilithium.Engine, _ dilithium.KeyPair, _ []byte) error {
			_, err := eng.GenerateKeyPair(ctx)
			return err
		}},
		{"sign", 3, softmod.OpSign, func(eng *dilithium.Engine, kp dilithium.KeyPair, _ []byte) error {
			_, err := eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
			return err
		}},
		{"verify", 2, softmod.OpVerify, func(eng *dilithium.Engine, kp dilithium.KeyPair, sig []byte) error {
			_, err := eng.Verify(ctx, sig, dilithium.Text("m"), kp.Public)
			return err
		}},
	}

	for _, tc := range cases {
		for point := 0; point < tc.allocs; point++ {
			eng, soft := newEngine(t, dilithium.Config{})
			kp := generate(t, eng)
			sig, err := eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
			require.NoError(t, err)

			baseline := soft.Outstanding()
			calls := soft.Calls(tc.op)

			soft.FailAllocAfter(point)
			err = tc.run(eng, kp, sig)

			require.Error(t, err, "%s: allocation point %d", tc.name, point)
			assert.ErrorIs(t, err, dilithium.ErrAllocation)
			var ae *dilithium.AllocationError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.name, ae.Op)
			assert.Equal(t, baseline, soft.Outstanding(), "%s: leaked scratch at allocation point %d", tc.name, point)
			assert.Equal(t, calls, soft.Calls(tc.op), "%s: foreign called after allocation failure", tc.name)
			assert.Equal(t, 2, eng.LiveHandles())
		}
	}
}

func TestGenerationFailureReleasesRegions(t *testing.T) {
	eng, soft := newEngine(t, dilithium.Config{})

	soft.ForceStatus(softmod.OpKeypair, softmod.StatusInternal)
	kp, err := eng.GenerateKeyPair(context.Background())
	require.Error(t, err)
	assert.True(t, kp.Public.IsZero())
	assert.True(t, kp.Secret.IsZero())

	var ge *dilithium.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, softmod.StatusInternal, ge.Status)
	assert.ErrorIs(t, err, dilithium.ErrGeneration)
	assert.Zero(t, soft.Outstanding())
	assert.Zero(t, eng.LiveHandles())
}

func TestSigningFailureReleasesScratch(t *testing.T) {
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	baseline := soft.Outstanding()

	soft.ForceStatus(softmod.OpSign, -7)
	sig, err := eng.Sign(context.Background(), dilithium.Text("m"), kp.Secret)
	require.Error(t, err)
	assert.Nil(t, sig)

	var se *dilithium.SigningError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, int32(-7), se.Status)
	assert.Equal(t, baseline, soft.Outstanding())
	assert.Equal(t, 2, eng.LiveHandles(), "signing failure must not free key handles")
}

func TestVerifyNonZeroStatusIsFalse(t *testing.T) {
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	ctx := context.Background()
	msg := dilithium.Text("m")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)

	for _, status := range []int32{softmod.StatusInvalidSignature, softmod.StatusMalformedKey, 1, 42} {
		soft.ForceStatus(softmod.OpVerify, status)
		ok, err := eng.Verify(ctx, sig, msg, kp.Public)
		require.NoError(t, err)
		assert.False(t, ok, "status %d", status)
	}
}

func TestPanicDuringSignReleasesScratch(t *testing.T) {
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	baseline := soft.Outstanding()

	soft.PanicOnNext(softmod.OpSign, "")
	require.Panics(t, func() {
		_, _ = eng.Sign(context.Background(), dilithium.Text("m"), kp.Secret)
	})
	assert.Equal(t, baseline, soft.Outstanding())

	// The engine lock was released by the unwinding call.
	sig, err := eng.Sign(context.Background(), dilithium.Text("m"), kp.Secret)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestForeignTrapIsReported(t *testing.T) {
	ctx := context.Background()
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	baseline := soft.Outstanding()

	soft.TrapOnNext(softmod.OpSign, nil)
	_, err := eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
	require.ErrorIs(t, err, dilithium.ErrSigning)
	require.ErrorIs(t, err, dilithium.ErrForeignCall)
	require.ErrorIs(t, err, softmod.ErrTrap)

	soft.TrapOnNext(softmod.OpVerify, nil)
	ok, err := eng.Verify(ctx, []byte{1}, dilithium.Text("m"), kp.Public)
	require.ErrorIs(t, err, dilithium.ErrForeignCall)
	assert.False(t, ok)

	soft.TrapOnNext(softmod.OpKeypair, nil)
	_, err = eng.GenerateKeyPair(ctx)
	require.ErrorIs(t, err, dilithium.ErrGeneration)
	require.ErrorIs(t, err, dilithium.ErrForeignCall)

	soft.TrapOnNext(softmod.OpMalloc, nil)
	_, err = eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
	require.ErrorIs(t, err, dilithium.ErrAllocation)
	require.ErrorIs(t, err, dilithium.ErrForeignCall)

	assert.Equal(t, baseline, soft.Outstanding())
}

func TestFreeFailureIsReported(t *testing.T) {
	ctx := context.Background()
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)
	msg := dilithium.Text("m")
	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)
	baseline := soft.Outstanding()

	// The message region is freed first and traps; the signature region is
	// still freed.
	soft.TrapOnNext(softmod.OpFree, nil)
	ok, err := eng.Verify(ctx, sig, msg, kp.Public)
	require.ErrorIs(t, err, dilithium.ErrRelease)
	assert.False(t, ok)
	assert.Equal(t, baseline+1, soft.Outstanding())
}

func TestConcurrentCallsAreSerialized(t *testing.T) {
	ctx := context.Background()
	eng, soft := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := []byte{byte(i), 0x2a}
			sig, err := eng.Sign(ctx, msg, kp.Secret)
			if err != nil {
				errs <- err
				return
			}
			ok, err := eng.Verify(ctx, sig, msg, kp.Public)
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- errors.New("signature did not verify")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	assert.Zero(t, soft.Overlaps())
	assert.Equal(t, 2, soft.Outstanding())
}

func TestHandleRegistry(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	other, _ := newEngine(t, dilithium.Config{})

	kp := generate(t, eng)
	foreignKP := generate(t, other)

	_, err := eng.Sign(ctx, dilithium.Text("m"), dilithium.SecretKey{})
	require.ErrorIs(t, err, dilithium.ErrInvalidHandle)

	_, err = eng.Sign(ctx, dilithium.Text("m"), foreignKP.Secret)
	require.ErrorIs(t, err, dilithium.ErrInvalidHandle)

	_, err = eng.Verify(ctx, []byte{1}, dilithium.Text("m"), foreignKP.Public)
	require.ErrorIs(t, err, dilithium.ErrInvalidHandle)

	require.NoError(t, eng.ReleaseKeyPair(ctx, kp))
	assert.Zero(t, eng.LiveHandles())

	_, err = eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
	require.ErrorIs(t, err, dilithium.ErrInvalidHandle)
	require.ErrorIs(t, eng.ReleasePublicKey(ctx, kp.Public), dilithium.ErrInvalidHandle)

	// A new key pair lands on the same addresses; the stale handles stay
	// invalid.
	fresh := generate(t, eng)
	require.Equal(t, kp.Secret.Addr(), fresh.Secret.Addr())
	_, err = eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
	require.ErrorIs(t, err, dilithium.ErrInvalidHandle)

	_, err = eng.Sign(ctx, dilithium.Text("m"), fresh.Secret)
	require.NoError(t, err)
}

func TestCloseReleasesLiveKeys(t *testing.T) {
	ctx := context.Background()
	soft, err := softmod.New(softmod.Options{})
	require.NoError(t, err)
	eng, err := dilithium.Open(soft, dilithium.Config{Logger: logging.Discard()})
	require.NoError(t, err)

	kp := generate(t, eng)
	generate(t, eng)
	assert.Equal(t, 4, soft.Outstanding())

	require.NoError(t, eng.Close(ctx))
	assert.Zero(t, soft.Outstanding())
	frees := soft.Calls(softmod.OpFree)
	require.ErrorIs(t, eng.Close(ctx), dilithium.ErrEngineClosed)
	assert.Equal(t, frees, soft.Calls(softmod.OpFree))

	_, err = eng.Sign(ctx, dilithium.Text("m"), kp.Secret)
	require.ErrorIs(t, err, dilithium.ErrEngineClosed)
	_, err = eng.GenerateKeyPair(ctx)
	require.ErrorIs(t, err, dilithium.ErrEngineClosed)
	require.ErrorIs(t, eng.ReleaseKeyPair(ctx, kp), dilithium.ErrEngineClosed)
}

func TestZeroizationWipesSecretKey(t *testing.T) {
	ctx := context.Background()
	for _, zeroize := range []bool{false, true} {
		eng, soft := newEngine(t, dilithium.Config{EnableZeroization: zeroize})
		kp := generate(t, eng)

		addr := kp.Secret.Addr()
		require.NoError(t, eng.ReleaseSecretKey(ctx, kp.Secret))

		region, ok := soft.Memory().Read(addr, dilithium.MLDSA44.SecretKeySize)
		require.True(t, ok)
		wiped := !bytes.ContainsFunc(region, func(r rune) bool { return r != 0 })
		assert.Equal(t, zeroize, wiped, "zeroize=%v", zeroize)
	}
}

func TestZeroizationWipesScratch(t *testing.T) {
	ctx := context.Background()
	marker := bytes.Repeat([]byte("scratch-marker!"), 8)

	for _, zeroize := range []bool{false, true} {
		eng, soft := newEngine(t, dilithium.Config{EnableZeroization: zeroize})
		kp := generate(t, eng)

		_, err := eng.Sign(ctx, marker, kp.Secret)
		require.NoError(t, err)

		all, ok := soft.Memory().Read(0, softmod.DefaultMemorySize)
		require.True(t, ok)
		assert.Equal(t, !zeroize, bytes.Contains(all, marker), "zeroize=%v", zeroize)
	}
}

func TestPublicKeyBytesIsACopy(t *testing.T) {
	ctx := context.Background()
	eng, _ := newEngine(t, dilithium.Config{})
	kp := generate(t, eng)

	first, err := eng.PublicKeyBytes(ctx, kp.Public)
	require.NoError(t, err)
	require.Len(t, first, int(dilithium.MLDSA44.PublicKeySize))
	fp := dilithium.Fingerprint(first)

	dilithium.ZeroizeBytes(first)
	second, err := eng.PublicKeyBytes(ctx, kp.Public)
	require.NoError(t, err)
	assert.Equal(t, fp, dilithium.Fingerprint(second))
}

func TestLogsDoNotContainMessages(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	eng, _ := newEngine(t, dilithium.Config{Logger: logging.New(logger)})
	kp := generate(t, eng)
	msg := dilithium.Text("do-not-log-this-message")

	sig, err := eng.Sign(ctx, msg, kp.Secret)
	require.NoError(t, err)
	_, err = eng.Verify(ctx, sig, dilithium.Text("x"), kp.Public)
	require.NoError(t, err)

	pub, err := eng.PublicKeyBytes(ctx, kp.Public)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"public_fp":"`+dilithium.Fingerprint(pub)+`"`)
	assert.Contains(t, out, `"msg":"signed message"`)
	assert.Contains(t, out, `"status":-1`)
	assert.NotContains(t, out, "do-not-log-this-message")
}

func TestModuleVersion(t *testing.T) {
	soft, err := softmod.New(softmod.Options{})
	require.NoError(t, err)

	v, err := dilithium.ModuleVersion(context.Background(), soft)
	require.NoError(t, err)
	assert.Equal(t, "softmod/ML-DSA-44", v)

	_, err = dilithium.ModuleVersion(context.Background(), nil)
	require.ErrorIs(t, err, dilithium.ErrNilForeign)

	assert.Equal(t, dilithium.Version, dilithium.WrapperVersion())
}
