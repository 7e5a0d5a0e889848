package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/serval-mesh/agent/pkg/blob"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/types"
)

type manifestListResponse struct {
	Keys []string `json:"keys"`
}

// handleManifestList reports the logical key of every manifest held in
// this node's local storage.
func (s *Server) handleManifestList(w http.ResponseWriter, r *http.Request) {
	keys, err := s.Storage.ListManifestKeys()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, manifestListResponse{Keys: keys})
}

type storeManifestResponse struct {
	Integrity string `json:"integrity"`
}

// handleManifestStore decodes a TOML manifest from the request body and
// stores it, returning in the integrity field the logical manifest key
// ("{fq_name}.manifest.toml") it was filed under, not a content digest.
func (s *Server) handleManifestStore(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var m types.Manifest
	if err := toml.Unmarshal(body, &m); err != nil {
		http.Error(w, "malformed manifest TOML", http.StatusBadRequest)
		return
	}

	if err := s.Storage.StoreManifest(r.Context(), m); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, storeManifestResponse{Integrity: m.ManifestKey()})
}

// handleManifestGet returns the named manifest's TOML representation.
func (s *Server) handleManifestGet(w http.ResponseWriter, r *http.Request) {
	m, err := s.Storage.Manifest(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := toml.Marshal(m)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/toml")
	_, _ = w.Write(data)
}

// handleManifestHead reports whether the named manifest exists, without a
// body.
func (s *Server) handleManifestHead(w http.ResponseWriter, r *http.Request) {
	_, err := s.Storage.Manifest(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type storeExecutableResponse struct {
	Integrity string `json:"integrity"`
}

// handleExecutableStore stores the compiled executable for a manifest's
// named version.
func (s *Server) handleExecutableStore(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	data, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	if err := s.Storage.StoreExecutable(r.Context(), name, version, data); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, storeExecutableResponse{Integrity: types.ExecutableKey(name, version)})
}

// handleExecutableGet streams a manifest's compiled executable for the
// named version.
func (s *Server) handleExecutableGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	version := chi.URLParam(r, "version")

	data, err := s.Storage.ExecutableBytes(r.Context(), name, version)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/wasm")
	_, _ = w.Write(data)
}

type storeDataResponse struct {
	Integrity string `json:"integrity"`
	IsNew     bool   `json:"is_new"`
}

// handleDataStore stores a raw blob under its content digest, reporting
// whether the bytes were previously unseen on this node.
func (s *Server) handleDataStore(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	digest, isNew, err := s.Storage.StoreRawBlob(r.Context(), data)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if isNew {
		status = http.StatusCreated
	}
	writeJSON(w, status, storeDataResponse{Integrity: digest, IsNew: isNew})
}

// handleDataGet streams a raw blob by its content digest.
func (s *Server) handleDataGet(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	if !blob.IsValidAddress(addr) {
		writeError(w, servalerr.New(servalerr.KindAddressInvalid, "malformed blob address"))
		return
	}

	data, err := s.Storage.DataByDigest(addr)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
}
