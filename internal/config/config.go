// Package config assembles the agent's runtime configuration from
// environment variables, mirroring the original agent's habit of reading
// its few knobs directly from the environment rather than a config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/serval-mesh/agent/pkg/types"
)

// StorageRole controls whether this node carries the Storage role.
type StorageRole string

const (
	// StorageAlways advertises Storage unconditionally.
	StorageAlways StorageRole = "always"
	// StorageAuto advertises Storage only when a local blob directory or
	// bucket is actually configured.
	StorageAuto StorageRole = "auto"
	// StorageNever never advertises Storage, regardless of configuration;
	// this node is always a storage client, proxying to a peer.
	StorageNever StorageRole = "never"
)

// Config is every environment-derived knob the agent reads once at
// startup.
type Config struct {
	// Host is the address the HTTP API binds to.
	Host string
	// Port is the HTTP API's listening port.
	Port int

	// MeshInterface names the network interface the mesh binds to; empty
	// picks the first viable non-loopback interface.
	MeshInterface string
	// MeshPort is the memberlist gossip port.
	MeshPort int

	// StorageRoleMode governs whether this node advertises Storage.
	StorageRoleMode StorageRole
	// BlobStore is the local content-addressable cache directory. Empty
	// disables the local tier.
	BlobStore string
	// StorageBucket is the S3-compatible bucket name backing the remote
	// tier. Empty disables it.
	StorageBucket string
	// AWSRegion records AWS_DEFAULT_REGION. No code reads this field; the
	// AWS SDK's default config loader picks the variable up from the
	// environment on its own.
	AWSRegion string

	// ExtensionsPath is a directory of *.wasm host extensions the engine
	// loads at startup. Empty yields an engine with no extensions.
	ExtensionsPath string
}

// BaseRoles are the roles every agent advertises unconditionally; only
// Storage is gated by STORAGE_ROLE, per spec.md §6's environment
// variable list (which names no per-role toggle for Scheduler/Runner).
var BaseRoles = []types.Role{types.RoleScheduler, types.RoleRunner}

// Load reads Config from the environment, applying the same defaults the
// original agent falls back to when a variable is unset.
func Load() (Config, error) {
	cfg := Config{
		Host:           getEnv("HOST", "0.0.0.0"),
		MeshInterface:  os.Getenv("MESH_INTERFACE"),
		StorageBucket:  os.Getenv("STORAGE_BUCKET"),
		AWSRegion:      os.Getenv("AWS_DEFAULT_REGION"),
		BlobStore:      getEnv("BLOB_STORE", "./data/blobs"),
		ExtensionsPath: os.Getenv("EXTENSIONS_PATH"),
	}

	port, err := getEnvInt("PORT", 7890)
	if err != nil {
		return Config{}, err
	}
	cfg.Port = port

	meshPort, err := getEnvInt("MESH_PORT", 7946)
	if err != nil {
		return Config{}, err
	}
	cfg.MeshPort = meshPort

	role, err := parseStorageRole(getEnv("STORAGE_ROLE", "auto"))
	if err != nil {
		return Config{}, err
	}
	cfg.StorageRoleMode = role

	return cfg, nil
}

// HasStorageTier reports whether BlobStore or StorageBucket configures an
// actual storage tier, used to resolve StorageAuto.
func (c Config) HasStorageTier() bool {
	return c.BlobStore != "" || c.StorageBucket != ""
}

// ResolveStorageRole decides whether this node advertises Storage, per
// StorageRoleMode and whatever tiers are actually configured.
func (c Config) ResolveStorageRole() bool {
	switch c.StorageRoleMode {
	case StorageAlways:
		return true
	case StorageNever:
		return false
	default:
		return c.HasStorageTier()
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func parseStorageRole(v string) (StorageRole, error) {
	switch StorageRole(strings.ToLower(v)) {
	case StorageAlways:
		return StorageAlways, nil
	case StorageAuto:
		return StorageAuto, nil
	case StorageNever:
		return StorageNever, nil
	default:
		return "", fmt.Errorf("invalid STORAGE_ROLE %q: must be always, auto, or never", v)
	}
}
