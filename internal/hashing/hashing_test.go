package hashing_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensiq/filescope/internal/hashing"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	return path
}

func TestComputeDigests_KnownVectors(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "hello.txt", []byte("hello"))
	engine := hashing.NewEngine()

	digests := engine.ComputeDigests(context.Background(), path, []string{"md5", "sha1", "sha256"})

	require.Len(t, digests, 3)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", digests["md5"].Hex)
	assert.Equal(t, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d", digests["sha1"].Hex)
	assert.Equal(t, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824", digests["sha256"].Hex)

	for _, d := range digests {
		assert.NoError(t, d.Err)
	}
}

func TestComputeDigests_EmptyFileHashesEmptyInput(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "empty.bin", nil)
	engine := hashing.NewEngine()

	digests := engine.ComputeDigests(context.Background(), path, []string{"md5", "sha256"})

	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", digests["md5"].Hex)
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", digests["sha256"].Hex)
}

func TestComputeDigests_Deterministic(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte("forensic evidence "), 2048)
	path := writeFile(t, "evidence.bin", content)
	engine := hashing.NewEngine()

	first := engine.ComputeDigests(context.Background(), path, []string{"sha256", "blake2b"})
	second := engine.ComputeDigests(context.Background(), path, []string{"sha256", "blake2b"})

	assert.Equal(t, first["sha256"].Hex, second["sha256"].Hex)
	assert.Equal(t, first["blake2b"].Hex, second["blake2b"].Hex)
}

func TestComputeDigests_StrategiesAgree(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte{0xAB, 0xCD, 0x01}, 4096)
	path := writeFile(t, "strategies.bin", content)

	// One engine per read strategy, forced via thresholds.
	whole := hashing.NewEngine(hashing.WithSizeThresholds(1<<20, 1<<30))
	chunked := hashing.NewEngine(hashing.WithSizeThresholds(1, 1<<30))
	mapped := hashing.NewEngine(hashing.WithSizeThresholds(1, 2))

	ctx := context.Background()
	want := whole.ComputeDigests(ctx, path, []string{"sha256"})["sha256"]
	require.NoError(t, want.Err)

	gotChunked := chunked.ComputeDigests(ctx, path, []string{"sha256"})["sha256"]
	require.NoError(t, gotChunked.Err)
	assert.Equal(t, want.Hex, gotChunked.Hex)

	gotMapped := mapped.ComputeDigests(ctx, path, []string{"sha256"})["sha256"]
	require.NoError(t, gotMapped.Err)
	assert.Equal(t, want.Hex, gotMapped.Hex)
}

func TestComputeDigests_BlakeDigestLengths(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "blake.txt", []byte("content"))
	engine := hashing.NewEngine()

	digests := engine.ComputeDigests(context.Background(), path, []string{"blake2b", "blake2s"})

	require.NoError(t, digests["blake2b"].Err)
	require.NoError(t, digests["blake2s"].Err)
	assert.Len(t, digests["blake2b"].Hex, 128)
	assert.Len(t, digests["blake2s"].Hex, 64)
}

func TestComputeDigests_UnsupportedAlgorithmIsIsolated(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "a.txt", []byte("x"))
	engine := hashing.NewEngine()

	digests := engine.ComputeDigests(context.Background(), path, []string{"sha256", "whirlpool"})

	require.NoError(t, digests["sha256"].Err)
	assert.NotEmpty(t, digests["sha256"].Hex)
	require.ErrorIs(t, digests["whirlpool"].Err, hashing.ErrUnsupportedAlgorithm)
	assert.Empty(t, digests["whirlpool"].Hex)
}

func TestComputeDigests_OversizeFailsEveryAlgorithm(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "big.bin", bytes.Repeat([]byte{0x01}, 64))
	engine := hashing.NewEngine(hashing.WithMaxFileSize(16))

	digests := engine.ComputeDigests(context.Background(), path, []string{"md5", "sha1", "sha256"})

	require.Len(t, digests, 3)

	for algorithm, d := range digests {
		assert.ErrorIs(t, d.Err, hashing.ErrFileTooLarge, "algorithm %s", algorithm)
		assert.Empty(t, d.Hex)
	}
}

func TestComputeDigests_MissingFile(t *testing.T) {
	t.Parallel()

	engine := hashing.NewEngine()

	digests := engine.ComputeDigests(context.Background(), filepath.Join(t.TempDir(), "ghost.bin"), []string{"sha256"})

	require.Error(t, digests["sha256"].Err)
}

func TestComputeDigests_DeduplicatesAlgorithms(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "a.txt", []byte("x"))
	engine := hashing.NewEngine()

	digests := engine.ComputeDigests(context.Background(), path, []string{"MD5", "md5", "Md5"})

	assert.Len(t, digests, 1)
	assert.NotEmpty(t, digests["md5"].Hex)
}

func TestComputeDigests_CancelledContext(t *testing.T) {
	t.Parallel()

	content := bytes.Repeat([]byte{0x7F}, 8192)
	path := writeFile(t, "slow.bin", content)

	// Force the chunked strategy so the cancellation check runs.
	engine := hashing.NewEngine(hashing.WithSizeThresholds(1, 1<<30))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	digests := engine.ComputeDigests(ctx, path, []string{"sha256"})
	require.ErrorIs(t, digests["sha256"].Err, context.Canceled)
}

func TestVerify(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "hello.txt", []byte("hello"))
	engine := hashing.NewEngine()
	ctx := context.Background()

	ok, err := engine.Verify(ctx, path, "md5", "5d41402abc4b2a76b9719d911017c592")
	require.NoError(t, err)
	assert.True(t, ok)

	// Case and surrounding whitespace are normalized.
	ok, err = engine.Verify(ctx, path, "md5", "  5D41402ABC4B2A76B9719D911017C592 ")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.Verify(ctx, path, "md5", "00000000000000000000000000000000")
	require.NoError(t, err)
	assert.False(t, ok)

	// Length mismatch short-circuits to false without error.
	ok, err = engine.Verify(ctx, path, "md5", "abcd")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = engine.Verify(ctx, path, "whirlpool", "abcd")
	require.ErrorIs(t, err, hashing.ErrUnsupportedAlgorithm)
}

func TestSupported(t *testing.T) {
	t.Parallel()

	supported := hashing.Supported()

	assert.Contains(t, supported, "md5")
	assert.Contains(t, supported, "sha512")
	assert.Contains(t, supported, "blake2b")
	assert.True(t, hashing.IsSupported("SHA256"))
	assert.False(t, hashing.IsSupported("crc32"))
}
