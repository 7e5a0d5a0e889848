/*
Package blob implements the agent's local content-addressable cache.

A Store keeps two directories under its root: content, holding blobs at
a path derived from their SHA-256 digest, and index, holding small files
that map a caller's logical key (a manifest's fully-qualified name, an
executable's name+version) to the digest of its content. Writes are
idempotent: storing identical bytes under the same key twice is a no-op
on the second call.

This package has no external dependencies; it is the storage layer's
lowest tier, used directly by pkg/storage and never reached for a
remote job.
*/
package blob
