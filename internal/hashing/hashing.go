// Package hashing computes cryptographic digests for evidence files.
// All requested algorithms are fed from a single streaming pass, with the
// read strategy picked by file size.
package hashing

import (
	"context"
	"crypto/md5"  //nolint:gosec // forensic fingerprinting, not authentication.
	"crypto/sha1" //nolint:gosec // forensic fingerprinting, not authentication.
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/exp/mmap"
)

// Sentinel errors carried inside per-algorithm digests.
var (
	ErrUnsupportedAlgorithm = errors.New("unsupported hash algorithm")
	ErrFileTooLarge         = errors.New("file exceeds maximum hashable size")
)

const (
	// DefaultChunkSize is the streaming read size when no override is set
	// and no adaptive band applies.
	DefaultChunkSize = 8192

	// defaultSmallFileLimit is the largest file read whole in one call.
	defaultSmallFileLimit = 1 << 20

	// defaultMmapThreshold is the smallest file accessed through mmap.
	defaultMmapThreshold = 10 << 20

	// mmapWindowSize is the per-iteration window copied out of the mapping.
	mmapWindowSize = 1 << 20
)

// Digest is the outcome of one algorithm over one file. Exactly one of
// Hex and Err is set.
type Digest struct {
	Algorithm string
	Hex       string
	Err       error
}

// Engine computes digests with configurable size thresholds. The zero
// thresholds are production values; tests lower them to exercise every
// strategy on small fixtures.
type Engine struct {
	chunkSize      int
	maxFileSize    int64
	smallFileLimit int64
	mmapThreshold  int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithChunkSize overrides the streaming chunk size, disabling adaptive sizing.
func WithChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithMaxFileSize sets the size above which every requested algorithm
// reports ErrFileTooLarge. Zero means unlimited.
func WithMaxFileSize(n int64) Option {
	return func(e *Engine) {
		e.maxFileSize = n
	}
}

// WithSizeThresholds overrides the whole-read limit and the mmap threshold.
func WithSizeThresholds(smallLimit, mmapMin int64) Option {
	return func(e *Engine) {
		if smallLimit > 0 {
			e.smallFileLimit = smallLimit
		}

		if mmapMin > 0 {
			e.mmapThreshold = mmapMin
		}
	}
}

// NewEngine creates an Engine with production thresholds.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		smallFileLimit: defaultSmallFileLimit,
		mmapThreshold:  defaultMmapThreshold,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Supported returns the sorted names of the supported algorithms.
func Supported() []string {
	names := []string{"md5", "sha1", "sha224", "sha256", "sha384", "sha512", "blake2b", "blake2s"}
	sort.Strings(names)

	return names
}

// IsSupported reports whether the named algorithm is available.
func IsSupported(algorithm string) bool {
	_, err := newHasher(strings.ToLower(algorithm))

	return err == nil
}

func newHasher(algorithm string) (hash.Hash, error) {
	switch algorithm {
	case "md5":
		return md5.New(), nil //nolint:gosec // forensic fingerprinting.
	case "sha1":
		return sha1.New(), nil //nolint:gosec // forensic fingerprinting.
	case "sha224":
		return sha256.New224(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha384":
		return sha512.New384(), nil
	case "sha512":
		return sha512.New(), nil
	case "blake2b":
		h, err := blake2b.New512(nil)
		if err != nil {
			return nil, fmt.Errorf("init blake2b: %w", err)
		}

		return h, nil
	case "blake2s":
		h, err := blake2s.New256(nil)
		if err != nil {
			return nil, fmt.Errorf("init blake2s: %w", err)
		}

		return h, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algorithm)
	}
}

// ComputeDigests hashes the file once, feeding every supported requested
// algorithm from the same pass. Per-algorithm problems (unknown name,
// oversize file, read failure) are carried in the returned digests;
// the map always has one entry per distinct requested algorithm.
func (e *Engine) ComputeDigests(ctx context.Context, path string, algorithms []string) map[string]Digest {
	digests := make(map[string]Digest, len(algorithms))
	hashers := make(map[string]hash.Hash, len(algorithms))

	for _, raw := range algorithms {
		algorithm := strings.ToLower(raw)
		if _, seen := digests[algorithm]; seen {
			continue
		}

		h, hashErr := newHasher(algorithm)
		if hashErr != nil {
			digests[algorithm] = Digest{Algorithm: algorithm, Err: hashErr}

			continue
		}

		digests[algorithm] = Digest{Algorithm: algorithm}
		hashers[algorithm] = h
	}

	if len(hashers) == 0 {
		return digests
	}

	info, statErr := os.Stat(path)
	if statErr != nil {
		return failAll(digests, hashers, fmt.Errorf("stat file: %w", statErr))
	}

	size := info.Size()

	if e.maxFileSize > 0 && size > e.maxFileSize {
		return failAll(digests, hashers, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, size))
	}

	feedErr := e.feed(ctx, path, size, multiWriter(hashers))
	if feedErr != nil {
		return failAll(digests, hashers, feedErr)
	}

	for algorithm, h := range hashers {
		digests[algorithm] = Digest{Algorithm: algorithm, Hex: hex.EncodeToString(h.Sum(nil))}
	}

	return digests
}

// Verify recomputes the file's digest with the given algorithm and compares
// it to the expected hex in constant time.
func (e *Engine) Verify(ctx context.Context, path, algorithm, expectedHex string) (bool, error) {
	algorithm = strings.ToLower(algorithm)

	digest, ok := e.ComputeDigests(ctx, path, []string{algorithm})[algorithm]
	if !ok || digest.Err != nil {
		return false, digest.Err
	}

	expected := strings.ToLower(strings.TrimSpace(expectedHex))

	if len(expected) != len(digest.Hex) {
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(expected), []byte(digest.Hex)) == 1, nil
}

func failAll(digests map[string]Digest, hashers map[string]hash.Hash, err error) map[string]Digest {
	for algorithm := range hashers {
		digests[algorithm] = Digest{Algorithm: algorithm, Err: err}
	}

	return digests
}

func multiWriter(hashers map[string]hash.Hash) io.Writer {
	writers := make([]io.Writer, 0, len(hashers))
	for _, h := range hashers {
		writers = append(writers, h)
	}

	return io.MultiWriter(writers...)
}

// feed streams the file's bytes into w using the strategy for its size:
// empty files feed nothing (yielding the empty-input digest), small files
// are read whole, large files go through mmap windows, everything between
// is chunk-streamed. Cancellation is honored between reads.
func (e *Engine) feed(ctx context.Context, path string, size int64, w io.Writer) error {
	switch {
	case size == 0:
		return nil
	case size <= e.smallFileLimit:
		return feedWhole(path, w)
	case size >= e.mmapThreshold:
		mmapErr := e.feedMapped(ctx, path, size, w)
		if mmapErr == nil || !errors.Is(mmapErr, errMmapUnavailable) {
			return mmapErr
		}

		// Mapping can fail on exotic filesystems; stream instead.
		return e.feedChunked(ctx, path, size, w)
	default:
		return e.feedChunked(ctx, path, size, w)
	}
}

func feedWhole(path string, w io.Writer) error {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return fmt.Errorf("read file: %w", readErr)
	}

	_, writeErr := w.Write(data)
	if writeErr != nil {
		return fmt.Errorf("hash write: %w", writeErr)
	}

	return nil
}

var errMmapUnavailable = errors.New("mmap unavailable")

func (e *Engine) feedMapped(ctx context.Context, path string, size int64, w io.Writer) error {
	reader, openErr := mmap.Open(path)
	if openErr != nil {
		return fmt.Errorf("%w: %w", errMmapUnavailable, openErr)
	}
	defer reader.Close()

	buf := make([]byte, mmapWindowSize)

	for offset := int64(0); offset < size; {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return fmt.Errorf("hash cancelled: %w", ctxErr)
		}

		n, readErr := reader.ReadAt(buf, offset)
		if n > 0 {
			_, writeErr := w.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("hash write: %w", writeErr)
			}

			offset += int64(n)
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}

			return fmt.Errorf("read mapping: %w", readErr)
		}
	}

	return nil
}

func (e *Engine) feedChunked(ctx context.Context, path string, size int64, w io.Writer) error {
	f, openErr := os.Open(path)
	if openErr != nil {
		return fmt.Errorf("open file: %w", openErr)
	}
	defer f.Close()

	buf := make([]byte, e.chunkSizeFor(size))

	for {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return fmt.Errorf("hash cancelled: %w", ctxErr)
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			_, writeErr := w.Write(buf[:n])
			if writeErr != nil {
				return fmt.Errorf("hash write: %w", writeErr)
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}

			return fmt.Errorf("read file: %w", readErr)
		}
	}
}

// chunkSizeFor picks the streaming chunk size. An explicit WithChunkSize
// wins; otherwise the size band decides.
func (e *Engine) chunkSizeFor(size int64) int {
	if e.chunkSize > 0 {
		return e.chunkSize
	}

	switch {
	case size < 1<<20:
		return 4096
	case size < 10<<20:
		return DefaultChunkSize
	case size < 100<<20:
		return 16384
	default:
		return 32768
	}
}
