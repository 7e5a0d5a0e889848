// Package storage implements the agent's two-tier blob storage façade: a
// local content-addressable cache (pkg/blob) backed, optionally, by a
// remote S3-compatible object store. When a node has neither configured
// it proxies every call to a peer advertising the storage role instead.
package storage

import (
	"context"
	"fmt"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/serval-mesh/agent/pkg/blob"
	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/types"
)

func marshalManifest(m types.Manifest) ([]byte, error) {
	return toml.Marshal(m)
}

func unmarshalManifest(data []byte, m *types.Manifest) error {
	return toml.Unmarshal(data, m)
}

// Backend is a remote object-store tier (an S3-compatible bucket).
type Backend interface {
	GetByKey(ctx context.Context, key string) ([]byte, error)
	StoreByKey(ctx context.Context, key string, data []byte) error
	HasKey(ctx context.Context, key string) bool
}

// ProxyClient relays storage calls to a peer advertising the storage role,
// used only when this node has neither a local cache nor a bucket
// configured. Satisfied by pkg/client.Client.
type ProxyClient interface {
	FetchManifest(ctx context.Context, fqName string) (types.Manifest, error)
	StoreManifest(ctx context.Context, m types.Manifest) error
	FetchExecutable(ctx context.Context, fqName, version string) ([]byte, error)
	StoreExecutable(ctx context.Context, fqName, version string, data []byte) error
}

// ProxyDialer produces a ProxyClient for a freshly-discovered storage peer.
// Storage never caches the result: each call re-resolves, since mesh
// membership may have changed.
type ProxyDialer func() (ProxyClient, error)

// Storage is the façade combining local cache, remote bucket, and
// proxy-to-peer fallback.
type Storage struct {
	local  *blob.Store
	bucket Backend
	dialer ProxyDialer
}

// New builds a Storage façade. local and bucket may each be nil; dialer
// may be nil if proxying is not desired (e.g. tests).
func New(local *blob.Store, bucket Backend, dialer ProxyDialer) *Storage {
	return &Storage{local: local, bucket: bucket, dialer: dialer}
}

// HasStorage reports whether this node has any local storage tier
// configured. When false, every operation proxies to a peer.
func (s *Storage) HasStorage() bool {
	return s.local != nil || s.bucket != nil
}

func (s *Storage) proxy() (ProxyClient, error) {
	if s.dialer == nil {
		return nil, servalerr.New(servalerr.KindServiceUnavailable, "no storage configured and no proxy available")
	}
	client, err := s.dialer()
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindServiceUnavailable, "dial storage peer", err)
	}
	return client, nil
}

// Manifest fetches a manifest by fully-qualified name, trying local then
// bucket, or proxying if this node has no storage of its own.
func (s *Storage) Manifest(ctx context.Context, fqName string) (types.Manifest, error) {
	if !s.HasStorage() {
		client, err := s.proxy()
		if err != nil {
			return types.Manifest{}, err
		}
		return client.FetchManifest(ctx, fqName)
	}

	key := types.ManifestKey(fqName)

	if s.local != nil {
		if data, err := s.local.GetByKey(key); err == nil {
			var m types.Manifest
			if err := unmarshalManifest(data, &m); err == nil {
				return m, nil
			}
		}
	}

	if s.bucket != nil {
		if data, err := s.bucket.GetByKey(ctx, key); err == nil {
			var m types.Manifest
			if err := unmarshalManifest(data, &m); err == nil {
				return m, nil
			}
		}
	}

	return types.Manifest{}, servalerr.New(servalerr.KindNotFound, fmt.Sprintf("manifest %q not found", fqName))
}

// StoreManifest writes a manifest to every configured tier, or proxies if
// this node has no storage of its own. Unlike reads, writes always try
// every tier rather than stopping at the first success.
func (s *Storage) StoreManifest(ctx context.Context, m types.Manifest) error {
	if !s.HasStorage() {
		client, err := s.proxy()
		if err != nil {
			return err
		}
		return client.StoreManifest(ctx, m)
	}

	data, err := marshalManifest(m)
	if err != nil {
		return servalerr.Wrap(servalerr.KindStorage, "encode manifest", err)
	}
	key := m.ManifestKey()

	return s.storeToAllTiers(ctx, key, data)
}

// ExecutableBytes fetches a job's compiled Wasm binary by fully-qualified
// name and version.
func (s *Storage) ExecutableBytes(ctx context.Context, fqName, version string) ([]byte, error) {
	if !s.HasStorage() {
		client, err := s.proxy()
		if err != nil {
			return nil, err
		}
		return client.FetchExecutable(ctx, fqName, version)
	}

	key := types.ExecutableKey(fqName, version)

	if s.local != nil {
		if data, err := s.local.GetByKey(key); err == nil {
			return data, nil
		}
	}

	if s.bucket != nil {
		if data, err := s.bucket.GetByKey(ctx, key); err == nil {
			return data, nil
		}
	}

	return nil, servalerr.New(servalerr.KindNotFound, fmt.Sprintf("executable %s@%s not found", fqName, version))
}

// StoreExecutable writes a job's compiled Wasm binary to every configured
// tier, or proxies if this node has no storage of its own.
func (s *Storage) StoreExecutable(ctx context.Context, fqName, version string, data []byte) error {
	if !s.HasStorage() {
		client, err := s.proxy()
		if err != nil {
			return err
		}
		return client.StoreExecutable(ctx, fqName, version, data)
	}

	key := types.ExecutableKey(fqName, version)
	return s.storeToAllTiers(ctx, key, data)
}

// ListManifestKeys returns the logical key of every manifest held in local
// storage. Unlike the other façade operations this never proxies or
// consults the bucket tier: enumerating a peer's or a bucket's full key
// space isn't a supported façade operation, only a direct local listing.
func (s *Storage) ListManifestKeys() ([]string, error) {
	if s.local == nil {
		return nil, servalerr.New(servalerr.KindServiceUnavailable, "no local storage configured for listing")
	}
	keys, err := s.local.ListByPrefix("")
	if err != nil {
		return nil, err
	}
	var manifests []string
	for _, key := range keys {
		if strings.Contains(key, "manifest") {
			manifests = append(manifests, key)
		}
	}
	return manifests, nil
}

// StoreRawBlob writes arbitrary bytes under their own content digest to
// every configured tier, reporting whether the content was previously
// unseen on this node. Unlike StoreManifest/StoreExecutable it never
// proxies: a storage client with no tiers of its own has nothing to
// dedup against, and the original scopes proxying to manifests and
// executables only.
func (s *Storage) StoreRawBlob(ctx context.Context, data []byte) (digest string, isNew bool, err error) {
	if !s.HasStorage() {
		return "", false, servalerr.New(servalerr.KindServiceUnavailable, "no local storage configured for raw blob writes")
	}

	digest = blob.Digest(data)
	isNew = s.local == nil || !s.local.HasDigest(digest)
	if err := s.storeToAllTiers(ctx, digest, data); err != nil {
		return "", false, err
	}
	return digest, isNew, nil
}

// DataByDigest fetches a blob by its raw content digest, bypassing the
// key index. Used to serve /v1/storage/data/{digest} directly; never
// proxies, since a digest fetch is assumed to target this specific node.
func (s *Storage) DataByDigest(digest string) ([]byte, error) {
	if s.local == nil {
		return nil, servalerr.New(servalerr.KindNotFound, fmt.Sprintf("blob %q not found", digest))
	}
	return s.local.GetByDigest(digest)
}

func (s *Storage) storeToAllTiers(ctx context.Context, key string, data []byte) error {
	var localErr, bucketErr error
	attempted := false

	if s.local != nil {
		attempted = true
		if _, err := s.local.Store(key, data); err != nil {
			localErr = err
			log.WithComponent("storage").Warn().Err(err).Str("key", key).Msg("local storage write failed")
		}
	}

	if s.bucket != nil {
		attempted = true
		if err := s.bucket.StoreByKey(ctx, key, data); err != nil {
			bucketErr = err
			log.WithComponent("storage").Warn().Err(err).Str("key", key).Msg("bucket storage write failed")
		}
	}

	if !attempted {
		return servalerr.New(servalerr.KindStorage, "no storage tiers configured")
	}
	if localErr != nil && bucketErr != nil {
		return servalerr.Wrap(servalerr.KindStorage, fmt.Sprintf("all storage attempts failed for %q", key), localErr)
	}
	return nil
}
