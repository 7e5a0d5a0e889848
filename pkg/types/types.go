// Package types defines the core data structures shared across the agent's
// components: peer identities and roles gossiped over the mesh, Wasm job
// manifests and their permissions, job envelopes, and execution results.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Role is an advertised mesh capability.
type Role string

const (
	RoleScheduler Role = "scheduler"
	RoleRunner    Role = "runner"
	RoleStorage   Role = "storage"
	RoleObserver  Role = "observer"
)

// ParseRole parses a lowercase role name.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case string(RoleScheduler):
		return RoleScheduler, nil
	case string(RoleRunner):
		return RoleRunner, nil
	case string(RoleStorage):
		return RoleStorage, nil
	case string(RoleObserver):
		return RoleObserver, nil
	default:
		return "", fmt.Errorf("invalid role %q", s)
	}
}

// PeerIdentity is the versioned payload a node gossips about itself. The
// HTTPPort is absent for pure observers, which never serve requests.
type PeerIdentity struct {
	InstanceID string
	HTTPPort   *uint16
	Roles      []Role
}

// HasRole reports whether this identity advertises the given role.
func (p PeerIdentity) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// PeerMetadata pairs a gossiped PeerIdentity with the address the mesh
// observed it arriving from.
type PeerMetadata struct {
	Identity PeerIdentity
	Address  string // IP only, no port
}

// HTTPAddress returns the "ip:port" address for this peer, or "" if it
// advertises no HTTP port (e.g. a pure Observer).
func (p PeerMetadata) HTTPAddress() string {
	if p.Identity.HTTPPort == nil || *p.Identity.HTTPPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", p.Address, *p.Identity.HTTPPort)
}

// Permission is a capability a job may be granted. Its lexical form is a
// colon-delimited string and round-trips through String/ParsePermission.
type Permission struct {
	kind permissionKind
	name string // extension name or http host, when applicable
}

type permissionKind int

const (
	permProcRead permissionKind = iota
	permAllExtensions
	permExtension
	permAllHTTPHosts
	permHTTPHost
)

// ProcRead grants access to /proc (Linux-only job affinity).
func ProcRead() Permission { return Permission{kind: permProcRead} }

// AllExtensions grants every host extension.
func AllExtensions() Permission { return Permission{kind: permAllExtensions} }

// ExtensionPermission grants a single named host extension.
func ExtensionPermission(name string) Permission {
	return Permission{kind: permExtension, name: name}
}

// AllHTTPHosts grants outbound access to every HTTP host.
func AllHTTPHosts() Permission { return Permission{kind: permAllHTTPHosts} }

// HTTPHostPermission grants outbound access to a single HTTP host.
func HTTPHostPermission(host string) Permission {
	return Permission{kind: permHTTPHost, name: host}
}

// String renders a Permission in its lexical form.
func (p Permission) String() string {
	switch p.kind {
	case permProcRead:
		return "proc:read:*"
	case permAllExtensions:
		return "extension:*"
	case permExtension:
		return "extension:" + p.name
	case permAllHTTPHosts:
		return "http:*"
	case permHTTPHost:
		return "http:" + p.name
	default:
		return ""
	}
}

// MarshalText implements encoding.TextMarshaler so Permission round-trips
// through JSON and TOML as its lexical string form.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePermission parses a permission's lexical form, the inverse of String.
func ParsePermission(s string) (Permission, error) {
	switch s {
	case "extension:*":
		return AllExtensions(), nil
	case "http:*":
		return AllHTTPHosts(), nil
	case "proc:read:*":
		return ProcRead(), nil
	}
	if rest, ok := strings.CutPrefix(s, "extension:"); ok && rest != "" {
		return ExtensionPermission(rest), nil
	}
	if rest, ok := strings.CutPrefix(s, "http:"); ok && rest != "" {
		return HTTPHostPermission(rest), nil
	}
	return Permission{}, fmt.Errorf("invalid permission %q", s)
}

// AllowsExtension reports whether this permission set admits the named
// host extension.
func AllowsExtension(perms []Permission, name string) bool {
	for _, p := range perms {
		if p.kind == permAllExtensions {
			return true
		}
		if p.kind == permExtension && p.name == name {
			return true
		}
	}
	return false
}

// AllowsHTTPHost reports whether this permission set admits outbound
// requests to the named host.
func AllowsHTTPHost(perms []Permission, host string) bool {
	for _, p := range perms {
		if p.kind == permAllHTTPHosts {
			return true
		}
		if p.kind == permHTTPHost && p.name == host {
			return true
		}
	}
	return false
}

// AllowsProcRead reports whether this permission set grants /proc access.
func AllowsProcRead(perms []Permission) bool {
	for _, p := range perms {
		if p.kind == permProcRead {
			return true
		}
	}
	return false
}

// Manifest describes a Wasm job type: where its executable lives, what
// extensions and permissions it needs.
type Manifest struct {
	Name                string       `toml:"name" json:"name"`
	Namespace           string       `toml:"namespace" json:"namespace"`
	Version             string       `toml:"version" json:"version"`
	Binary              string       `toml:"binary" json:"binary"`
	Description         string       `toml:"description" json:"description"`
	RequiredExtensions  []string     `toml:"required_extensions" json:"required_extensions"`
	RequiredPermissions []Permission `toml:"required_permissions" json:"required_permissions"`
}

// FQName returns the fully-qualified "{namespace}.{name}" identifier,
// lowercased and with hyphens normalized to underscores.
func (m Manifest) FQName() string {
	name := strings.ToLower(strings.ReplaceAll(m.Name, "-", "_"))
	return fmt.Sprintf("%s.%s", strings.ToLower(m.Namespace), name)
}

// ManifestKey builds the logical blob-store key for a manifest by its
// fully-qualified name.
func ManifestKey(fqName string) string {
	return fqName + ".manifest.toml"
}

// ManifestKey returns the logical blob-store key for this manifest.
func (m Manifest) ManifestKey() string {
	return ManifestKey(m.FQName())
}

// ExecutableKey builds the logical blob-store key for a job's compiled
// binary by fully-qualified name and version.
func ExecutableKey(fqName, version string) string {
	return fmt.Sprintf("%s.%s.wasm", fqName, version)
}

// ExecutableKey returns the logical blob-store key for this manifest's
// compiled binary.
func (m Manifest) ExecutableKey() string {
	return ExecutableKey(m.FQName(), m.Version)
}

// WasmResult carries the outcome of running a Wasm executable.
type WasmResult struct {
	Code   int32
	Stdout []byte
	Stderr []byte
}

// Success reports whether the execution completed with a zero exit code.
func (r WasmResult) Success() bool { return r.Code == 0 }

// JobEnvelope is the in-flight bundle the runner API works with for a
// direct "run this job now" request: a manifest, its compiled binary, and
// an optional input payload. Distinct from ScheduledJob, which is the
// scheduler's durable record of a queued job.
type JobEnvelope struct {
	ID         string
	Manifest   Manifest
	Executable []byte
	Input      []byte
}

// RunnerHistory tracks running totals and in-flight job metadata for a
// runner node, exposed for operator visibility.
type RunnerHistory struct {
	Total    int64                  `json:"total"`
	Errors   int64                  `json:"errors"`
	InFlight map[string]JobMetadata `json:"in_flight"`
}

// JobMetadata is a lightweight, human-readable record of a job in flight.
type JobMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	SubmittedAt time.Time `json:"submitted_at"`
}
