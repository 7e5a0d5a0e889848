/*
Package storage implements the agent's two-tier blob storage façade.

A Storage value wraps an optional local cache (pkg/blob) and an optional
remote object-store Backend (an S3-compatible bucket). Reads try the
local tier first, then the bucket. Writes are attempted against every
configured tier, not just the first that succeeds. A node with neither
tier configured proxies every call to a peer advertising the storage
role instead — see ProxyClient and ProxyDialer.

# Usage

	local, err := blob.New("/var/lib/serval/blobs")
	bucket, err := storage.NewS3Backend(ctx, "my-bucket")
	store := storage.New(local, bucket, dialer)

	manifest, err := store.Manifest(ctx, "acme.resize")
	err = store.StoreExecutable(ctx, "acme.resize", "1.0.0", wasmBytes)

# Integration Points

  - pkg/blob: local content-addressable cache, the storage façade's
    fast-path tier
  - pkg/client: implements ProxyClient for the no-local-storage case
  - pkg/api: exposes this façade's operations over HTTP
*/
package storage
