// Package blob implements the agent's local content-addressable cache of
// Wasm manifests and executables. Blobs are written once under a stable
// digest and, additionally, indexed under a caller-supplied logical key
// (a manifest's fully-qualified name, an executable's name+version) so
// callers can fetch by either name.
package blob

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/serval-mesh/agent/pkg/servalerr"
)

const (
	contentDir = "content"
	indexDir   = "index"
)

// Store is a local, disk-backed content-addressable blob cache. A Store
// value is safe for concurrent use.
type Store struct {
	location string
}

// New creates a blob store rooted at location, creating it if absent.
// It fails fast if the directory cannot be created or is not writable,
// following this codebase's constructor-time validation idiom.
func New(location string) (*Store, error) {
	if _, err := os.Stat(location); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(location, 0o755); err != nil {
			return nil, servalerr.Wrap(servalerr.KindStorage, "create blob store directory", err)
		}
	} else if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "stat blob store directory", err)
	}

	info, err := os.Stat(location)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "stat blob store directory", err)
	}
	if !info.IsDir() {
		return nil, servalerr.New(servalerr.KindStorage, fmt.Sprintf("%s is not a directory", location))
	}

	for _, dir := range []string{contentDir, indexDir} {
		if err := os.MkdirAll(filepath.Join(location, dir), 0o755); err != nil {
			return nil, servalerr.Wrap(servalerr.KindStorage, "create blob store subdirectory", err)
		}
	}

	probe := filepath.Join(location, ".write-probe")
	if err := os.WriteFile(probe, nil, 0o644); err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "blob store directory is not writable", err)
	}
	_ = os.Remove(probe)

	return &Store{location: location}, nil
}

// Digest computes the lowercase hex SHA-256 digest of data. This is the
// canonical address form the store uses internally; SRI-looking strings
// ("sha256-...") passed to Get/Has are normalized to this form.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Store writes data under its content digest and indexes it under key,
// returning the digest. Writing the same bytes twice under the same key
// is a no-op that still returns the correct digest: the operation is
// idempotent.
func (s *Store) Store(key string, data []byte) (string, error) {
	digest := Digest(data)
	if err := s.writeContent(digest, data); err != nil {
		return "", err
	}
	if err := s.writeIndex(key, digest); err != nil {
		return "", err
	}
	return digest, nil
}

func (s *Store) writeContent(digest string, data []byte) error {
	path := s.contentPath(digest)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return servalerr.Wrap(servalerr.KindStorage, "create blob content directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return servalerr.Wrap(servalerr.KindStorage, "write blob content", err)
	}
	_, werr := tmp.Write(data)
	if err := errors.Join(werr, tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return servalerr.Wrap(servalerr.KindStorage, "write blob content", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return servalerr.Wrap(servalerr.KindStorage, "finalize blob content", err)
	}
	return nil
}

func (s *Store) writeIndex(key, digest string) error {
	path := s.indexPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return servalerr.Wrap(servalerr.KindStorage, "create blob index directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return servalerr.Wrap(servalerr.KindStorage, "write blob index", err)
	}
	_, werr := tmp.WriteString(digest)
	if err := errors.Join(werr, tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return servalerr.Wrap(servalerr.KindStorage, "write blob index", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return servalerr.Wrap(servalerr.KindStorage, "finalize blob index", err)
	}
	return nil
}

// GetByKey resolves a logical key to its content and returns the bytes.
func (s *Store) GetByKey(key string) ([]byte, error) {
	digest, err := s.digestForKey(key)
	if err != nil {
		return nil, err
	}
	return s.GetByDigest(digest)
}

// StreamByKey resolves a logical key to its content and returns an open
// read stream; the caller must close it.
func (s *Store) StreamByKey(key string) (io.ReadCloser, error) {
	digest, err := s.digestForKey(key)
	if err != nil {
		return nil, err
	}
	return s.StreamByDigest(digest)
}

// GetByDigest returns the bytes stored under the given digest. The digest
// may be a plain lowercase hex SHA-256 string or a "sha256-<base64>"-style
// SRI string; both are normalized before lookup.
func (s *Store) GetByDigest(digest string) ([]byte, error) {
	r, err := s.StreamByDigest(digest)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "read blob content", err)
	}
	return data, nil
}

// StreamByDigest opens a read stream for the blob stored under digest.
func (s *Store) StreamByDigest(digest string) (io.ReadCloser, error) {
	normalized, err := normalizeDigest(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.contentPath(normalized))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, servalerr.New(servalerr.KindNotFound, fmt.Sprintf("blob %q not found", digest))
	}
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "open blob content", err)
	}
	return f, nil
}

// HasKey reports whether a blob is indexed under the given logical key.
func (s *Store) HasKey(key string) bool {
	_, err := os.Stat(s.indexPath(key))
	return err == nil
}

// HasDigest reports whether a blob exists under the given digest.
func (s *Store) HasDigest(digest string) bool {
	normalized, err := normalizeDigest(digest)
	if err != nil {
		return false
	}
	_, err = os.Stat(s.contentPath(normalized))
	return err == nil
}

// ListByPrefix returns every logical key stored under this store whose
// name starts with prefix.
func (s *Store) ListByPrefix(prefix string) ([]string, error) {
	var keys []string
	root := filepath.Join(s.location, indexDir)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindStorage, "list blob index", err)
	}
	return keys, nil
}

func (s *Store) digestForKey(key string) (string, error) {
	data, err := os.ReadFile(s.indexPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", servalerr.New(servalerr.KindNotFound, fmt.Sprintf("key %q not found", key))
	}
	if err != nil {
		return "", servalerr.Wrap(servalerr.KindStorage, "read blob index", err)
	}
	return string(data), nil
}

func (s *Store) contentPath(digest string) string {
	return filepath.Join(s.location, contentDir, digest[:2], digest[2:])
}

func (s *Store) indexPath(key string) string {
	return filepath.Join(s.location, indexDir, key)
}

// IsValidAddress reports whether addr is a well-formed content address:
// either a bare 64-character lowercase-or-mixed-case hex SHA-256 digest or
// a "sha256-<base64>" SRI-style string.
func IsValidAddress(addr string) bool {
	_, err := normalizeDigest(addr)
	return err == nil
}

// normalizeDigest accepts either a bare lowercase hex SHA-256 string or a
// "sha256-<base64>" SRI-style string and returns the bare hex form.
func normalizeDigest(digest string) (string, error) {
	if rest, ok := strings.CutPrefix(digest, "sha256-"); ok {
		decoded, err := sriToHex(rest)
		if err != nil {
			return "", servalerr.New(servalerr.KindAddressInvalid, fmt.Sprintf("invalid blob address %q", digest))
		}
		return decoded, nil
	}
	if len(digest) != 64 || !isHex(digest) {
		return "", servalerr.New(servalerr.KindAddressInvalid, fmt.Sprintf("invalid blob address %q", digest))
	}
	return strings.ToLower(digest), nil
}

func isHex(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f' || r >= 'A' && r <= 'F') {
			return false
		}
	}
	return true
}

func sriToHex(base64Part string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Part)
	if err != nil {
		return "", err
	}
	if len(raw) != sha256.Size {
		return "", fmt.Errorf("unexpected digest length %d", len(raw))
	}
	return hex.EncodeToString(raw), nil
}
