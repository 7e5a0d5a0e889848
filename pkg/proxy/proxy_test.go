package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serval-mesh/agent/pkg/types"
)

type fakePeerLister struct {
	peers []types.PeerMetadata
}

func (f *fakePeerLister) PeersWithRole(role types.Role) []types.PeerMetadata {
	var matches []types.PeerMetadata
	for _, p := range f.peers {
		if p.Identity.HasRole(role) {
			matches = append(matches, p)
		}
	}
	return matches
}

func peerFor(addr string, instanceID string, role types.Role) types.PeerMetadata {
	u, _ := url.Parse("http://" + addr)
	port := mustPort(u.Port())
	return types.PeerMetadata{
		Identity: types.PeerIdentity{InstanceID: instanceID, HTTPPort: &port, Roles: []types.Role{role}},
		Address:  u.Hostname(),
	}
}

func mustPort(s string) uint16 {
	var p uint16
	for _, c := range s {
		p = p*10 + uint16(c-'0')
	}
	return p
}

func TestTableRoleForLongestPrefix(t *testing.T) {
	table := Table{
		{Prefix: "/v1/storage", Role: types.RoleStorage},
		{Prefix: "/v1/storage/manifests", Role: types.RoleStorage},
		{Prefix: "/v1/scheduler", Role: types.RoleScheduler},
	}

	role, ok := table.RoleFor("/v1/scheduler/enqueue")
	require.True(t, ok)
	assert.Equal(t, types.RoleScheduler, role)

	_, ok = table.RoleFor("/monitor/ping")
	assert.False(t, ok)
}

func TestRelayServesFromPeerAndTagsHeaders(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "source-node", r.Header.Get(HeaderProxiedFor))
		assert.Empty(t, r.Header.Get("Content-Length"))
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello from peer"))
	}))
	defer backend.Close()

	peer := peerFor(backend.Listener.Addr().String(), "peer-node", types.RoleRunner)
	lister := &fakePeerLister{peers: []types.PeerMetadata{peer}}
	relay := NewRelay(lister, "source-node")

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/resize/run", nil)
	rec := httptest.NewRecorder()

	relay.ServeRole(rec, req, types.RoleRunner)

	resp := rec.Result()
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "peer-node", resp.Header.Get(HeaderProxiedFrom))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello from peer", string(body))
}

func TestRelayPreservesInboundProxiedFor(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "originator-node", r.Header.Get(HeaderProxiedFor))
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	peer := peerFor(backend.Listener.Addr().String(), "second-hop-node", types.RoleRunner)
	lister := &fakePeerLister{peers: []types.PeerMetadata{peer}}
	relay := NewRelay(lister, "first-hop-node")

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/resize/run", nil)
	req.Header.Set(HeaderProxiedFor, "originator-node")
	rec := httptest.NewRecorder()

	relay.ServeRole(rec, req, types.RoleRunner)

	assert.Equal(t, http.StatusOK, rec.Result().StatusCode)
}

func TestRelayNoServiceReturns503(t *testing.T) {
	lister := &fakePeerLister{}
	relay := NewRelay(lister, "source-node")

	req := httptest.NewRequest(http.MethodGet, "/v1/storage/manifests/acme.resize", nil)
	rec := httptest.NewRecorder()

	relay.ServeRole(rec, req, types.RoleStorage)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddlewareServesLocallyWhenRoleHeld(t *testing.T) {
	table := Table{{Prefix: "/v1/scheduler", Role: types.RoleScheduler}}
	calledLocal := false
	local := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calledLocal = true
		w.WriteHeader(http.StatusOK)
	})

	mw := Middleware(table, []types.Role{types.RoleScheduler}, NewRelay(&fakePeerLister{}, "self"))
	handler := mw(local)

	req := httptest.NewRequest(http.MethodPost, "/v1/scheduler/enqueue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.True(t, calledLocal)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareRelaysWhenRoleMissing(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer backend.Close()

	peer := peerFor(backend.Listener.Addr().String(), "peer-node", types.RoleScheduler)
	table := Table{{Prefix: "/v1/scheduler", Role: types.RoleScheduler}}
	calledLocal := false
	local := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calledLocal = true
	})

	mw := Middleware(table, nil, NewRelay(&fakePeerLister{peers: []types.PeerMetadata{peer}}, "self"))
	handler := mw(local)

	req := httptest.NewRequest(http.MethodPost, "/v1/scheduler/enqueue", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.False(t, calledLocal)
	assert.Equal(t, http.StatusOK, rec.Code)
}
