package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/serval-mesh/agent/pkg/types"
)

// handlePing answers the unauthenticated liveness probe every peer
// exposes, independent of role.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}

type statusResponse struct {
	InstanceID  string       `json:"instance_id"`
	Roles       []types.Role `json:"roles"`
	Fingerprint string       `json:"fingerprint"`
	PeerCount   int          `json:"peer_count"`
}

// handleStatus reports this node's identity, advertised roles, and a
// cheap summary of mesh membership.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	self := s.Mesh.Self()
	writeJSON(w, http.StatusOK, statusResponse{
		InstanceID:  self.InstanceID,
		Roles:       self.Roles,
		Fingerprint: s.Mesh.Fingerprint(),
		PeerCount:   len(s.Mesh.Peers()),
	})
}

type memberView struct {
	HTTPAddress string       `json:"http_address"`
	Roles       []types.Role `json:"roles"`
}

type membersResponse struct {
	Fingerprint string                `json:"fingerprint"`
	Members     map[string]memberView `json:"members"`
}

// handleMeshMembers reports every peer this node currently knows about,
// including itself.
func (s *Server) handleMeshMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.membersView(s.Mesh.Peers(), true))
}

// handleMeshRoleMembers reports the membership map filtered to peers
// advertising the role named in the path.
func (s *Server) handleMeshRoleMembers(w http.ResponseWriter, r *http.Request) {
	role, err := types.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	self := s.Mesh.Self()
	writeJSON(w, http.StatusOK, s.membersView(s.Mesh.PeersWithRole(role), self.HasRole(role)))
}

func (s *Server) membersView(peers []types.PeerMetadata, includeSelf bool) membersResponse {
	self := s.Mesh.Self()
	members := make(map[string]memberView, len(peers)+1)
	if includeSelf {
		members[self.InstanceID] = memberView{Roles: self.Roles}
	}
	for _, p := range peers {
		members[p.Identity.InstanceID] = memberView{
			HTTPAddress: p.HTTPAddress(),
			Roles:       p.Identity.Roles,
		}
	}
	return membersResponse{Fingerprint: s.Mesh.Fingerprint(), Members: members}
}
