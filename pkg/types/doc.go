/*
Package types defines the core data structures shared across the agent.

This package contains the domain model gossiped over the mesh and exchanged
over the HTTP API: peer identities and roles, job manifests, permissions,
and execution results. These types are used by pkg/mesh, pkg/engine,
pkg/storage, pkg/proxy, and pkg/api.

# Core Types

Mesh:
  - Role: scheduler, runner, storage, or observer
  - PeerIdentity: the versioned payload a node gossips about itself
  - PeerMetadata: a PeerIdentity plus the address it arrived from

Jobs:
  - Manifest: name, namespace, version, binary path, required extensions
    and permissions for a Wasm job type
  - Permission: a single capability grant (proc read, extension, http host)
  - JobEnvelope: a manifest plus its compiled binary and input, ready to run
  - WasmResult: exit code and captured stdout/stderr from a run
  - RunnerHistory / JobMetadata: operator-visible execution bookkeeping

# Design Patterns

Enums are typed strings, as elsewhere in this codebase:

	type Role string
	const RoleScheduler Role = "scheduler"

Permission is an opaque struct rather than a string so that construction
is validated at the call site; its lexical form is produced by String and
parsed by ParsePermission, and both directions agree byte-for-byte.
*/
package types
