package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-mesh/agent/pkg/mesh"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/types"
)

// newTestMesh builds a single-node Mesh bound to loopback on an
// OS-assigned port, with no peers joined. Good enough to exercise
// Self()/Peers()/Fingerprint() without any real cluster.
func newTestMesh(t *testing.T, instanceID string, roles []types.Role) *mesh.Mesh {
	t.Helper()
	m, err := mesh.New(mesh.Config{
		Identity: types.PeerIdentity{InstanceID: instanceID, Roles: roles},
		BindAddr: "127.0.0.1",
		BindPort: 0,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Leave() })
	return m
}

func newTestServer(t *testing.T, roles []types.Role) *Server {
	t.Helper()
	m := newTestMesh(t, "node-under-test", roles)
	return NewServer(m, nil, nil, nil, roles)
}

func TestHandlePing(t *testing.T) {
	srv := newTestServer(t, []types.Role{types.RoleScheduler, types.RoleRunner})
	req := httptest.NewRequest(http.MethodGet, "/monitor/ping", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong", rec.Body.String())
	assert.Equal(t, "GNU/serval-mesh", rec.Header().Get(headerMeshRelay))
}

func TestHandleStatus(t *testing.T) {
	roles := []types.Role{types.RoleScheduler, types.RoleRunner}
	srv := newTestServer(t, roles)

	req := httptest.NewRequest(http.MethodGet, "/monitor/status", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "node-under-test", body.InstanceID)
	assert.ElementsMatch(t, roles, body.Roles)
	assert.Equal(t, 0, body.PeerCount)
}

func TestHandleMeshMembersIncludesSelf(t *testing.T) {
	srv := newTestServer(t, []types.Role{types.RoleRunner})

	req := httptest.NewRequest(http.MethodGet, "/v1/mesh", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body membersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body.Members, "node-under-test")
}

func TestHandleMeshRoleMembersInvalidRole(t *testing.T) {
	srv := newTestServer(t, []types.Role{types.RoleRunner})

	req := httptest.NewRequest(http.MethodGet, "/v1/mesh/roles/not-a-role", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleMeshRoleMembersExcludesSelfWithoutRole(t *testing.T) {
	srv := newTestServer(t, []types.Role{types.RoleRunner})

	req := httptest.NewRequest(http.MethodGet, "/v1/mesh/roles/storage", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body membersResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotContains(t, body.Members, "node-under-test")
}

// Routes gated on a role this node doesn't advertise must relay, not
// reach a nil component (Scheduler/Runner/Storage are all nil here).
// With no peer known for the role, the relay fails closed with 503.
func TestRoleGatedRouteRelaysWhenRoleMissing(t *testing.T) {
	srv := newTestServer(t, []types.Role{types.RoleRunner})

	body, err := json.Marshal(map[string]string{"manifest_key": "demo@1.0.0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/scheduler/enqueue", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// A node holding Scheduler but not Runner must relay /v1/jobs rather
// than fall through to a nil Runner.
func TestRoleGatedRouteRelaysForDifferentMissingRole(t *testing.T) {
	srv := newTestServer(t, []types.Role{types.RoleScheduler})

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/history", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWriteErrorMapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind   servalerr.Kind
		status int
	}{
		{servalerr.KindAddressInvalid, http.StatusBadRequest},
		{servalerr.KindNotFound, http.StatusNotFound},
		{servalerr.KindServiceUnavailable, http.StatusServiceUnavailable},
		{servalerr.KindTransport, http.StatusBadGateway},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeError(rec, servalerr.New(tc.kind, "boom"))
		assert.Equal(t, tc.status, rec.Code)
	}
}

func TestWriteErrorDefaultsToInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, assertAnError{})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "untagged failure" }
