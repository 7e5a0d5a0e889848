package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPermissionRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		perm Permission
		text string
	}{
		{"proc read", ProcRead(), "proc:read:*"},
		{"all extensions", AllExtensions(), "extension:*"},
		{"named extension", ExtensionPermission("image-resize"), "extension:image-resize"},
		{"all http hosts", AllHTTPHosts(), "http:*"},
		{"named http host", HTTPHostPermission("api.example.com"), "http:api.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.perm.String())

			parsed, err := ParsePermission(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.perm, parsed)
		})
	}
}

func TestParsePermissionInvalid(t *testing.T) {
	tests := []string{
		"",
		"extension:",
		"http:",
		"proc:read",
		"bogus:thing",
	}

	for _, s := range tests {
		t.Run(s, func(t *testing.T) {
			_, err := ParsePermission(s)
			assert.Error(t, err)
		})
	}
}

func TestAllowsExtension(t *testing.T) {
	perms := []Permission{ExtensionPermission("thumbnail")}
	assert.True(t, AllowsExtension(perms, "thumbnail"))
	assert.False(t, AllowsExtension(perms, "other"))
	assert.True(t, AllowsExtension([]Permission{AllExtensions()}, "anything"))
}

func TestAllowsHTTPHost(t *testing.T) {
	perms := []Permission{HTTPHostPermission("api.example.com")}
	assert.True(t, AllowsHTTPHost(perms, "api.example.com"))
	assert.False(t, AllowsHTTPHost(perms, "evil.example.com"))
	assert.True(t, AllowsHTTPHost([]Permission{AllHTTPHosts()}, "anything.example.com"))
}

func TestManifestFQName(t *testing.T) {
	m := Manifest{Namespace: "acme", Name: "Image-Resize"}
	assert.Equal(t, "acme.image_resize", m.FQName())
}

func TestManifestKeys(t *testing.T) {
	m := Manifest{Namespace: "acme", Name: "resize", Version: "1.2.0"}
	assert.Equal(t, "acme.resize.manifest.toml", m.ManifestKey())
	assert.Equal(t, "acme.resize.1.2.0.wasm", m.ExecutableKey())
}

func TestPeerMetadataHTTPAddress(t *testing.T) {
	var port uint16 = 8080
	withPort := PeerMetadata{
		Identity: PeerIdentity{InstanceID: "a", HTTPPort: &port},
		Address:  "10.0.0.5",
	}
	assert.Equal(t, "10.0.0.5:8080", withPort.HTTPAddress())

	observer := PeerMetadata{
		Identity: PeerIdentity{InstanceID: "b"},
		Address:  "10.0.0.6",
	}
	assert.Equal(t, "", observer.HTTPAddress())
}

func TestPeerIdentityHasRole(t *testing.T) {
	id := PeerIdentity{Roles: []Role{RoleRunner, RoleStorage}}
	assert.True(t, id.HasRole(RoleRunner))
	assert.False(t, id.HasRole(RoleScheduler))
}

func TestWasmResultSuccess(t *testing.T) {
	assert.True(t, WasmResult{Code: 0}.Success())
	assert.False(t, WasmResult{Code: 1}.Success())
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("Runner")
	require.NoError(t, err)
	assert.Equal(t, RoleRunner, r)

	_, err = ParseRole("nonsense")
	assert.Error(t, err)
}
