// Package api wires the agent's mesh, storage, scheduler, and runner
// components behind one chi router, implementing the HTTP surface every
// peer exposes.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/mesh"
	"github.com/serval-mesh/agent/pkg/metrics"
	"github.com/serval-mesh/agent/pkg/proxy"
	"github.com/serval-mesh/agent/pkg/runner"
	"github.com/serval-mesh/agent/pkg/scheduler"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/storage"
	"github.com/serval-mesh/agent/pkg/types"
)

// headerMeshRelay is the ceremonial header every response carries, per
// spec.md's external interface table.
const headerMeshRelay = "X-Mesh-Relay"

// maxBodyBytes caps request bodies at 100 MiB.
const maxBodyBytes = 100 << 20

// Server composes this node's mesh handle, storage façade, scheduler,
// and runner behind one HTTP router.
type Server struct {
	Mesh      *mesh.Mesh
	Storage   *storage.Storage
	Scheduler *scheduler.Scheduler
	Runner    *runner.Runner
	Roles     []types.Role
}

// NewServer builds a Server. Any of Storage, Scheduler, Runner may be nil
// if this node doesn't advertise the corresponding role; requests for
// routes requiring it are then relayed via the proxy Table instead.
func NewServer(m *mesh.Mesh, st *storage.Storage, sched *scheduler.Scheduler, rn *runner.Runner, roles []types.Role) *Server {
	return &Server{Mesh: m, Storage: st, Scheduler: sched, Runner: rn, Roles: roles}
}

// routeTable maps API path prefixes to the role required to serve them,
// per spec.md §6's route table.
var routeTable = proxy.Table{
	{Prefix: "/v1/scheduler", Role: types.RoleScheduler},
	{Prefix: "/v1/jobs", Role: types.RoleRunner},
	{Prefix: "/v1/storage", Role: types.RoleStorage},
}

// Router builds the full chi.Router for this node.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(meshRelayHeader)
	r.Use(bodyLimit)

	relay := proxy.NewRelay(s.Mesh, s.Mesh.Self().InstanceID)
	r.Use(proxy.Middleware(routeTable, s.Roles, relay))

	r.Get("/monitor/ping", s.handlePing)
	r.Get("/monitor/status", s.handleStatus)

	r.Get("/v1/mesh", s.handleMeshMembers)
	r.Get("/v1/mesh/roles/{role}", s.handleMeshRoleMembers)

	r.Post("/v1/scheduler/enqueue", s.handleSchedulerEnqueue)
	r.Post("/v1/scheduler/claim", s.handleSchedulerClaim)
	r.Post("/v1/scheduler/tickle/{job_id}", s.handleSchedulerTickle)

	r.Post("/v1/jobs/{name}/run", s.handleJobRun)
	r.Get("/v1/jobs/history", s.handleJobHistory)
	r.Post("/v1/jobs/run-stored/{addr}", s.handleJobRunStored)

	r.Get("/v1/storage/manifests", s.handleManifestList)
	r.Post("/v1/storage/manifests", s.handleManifestStore)
	r.Get("/v1/storage/manifests/{name}", s.handleManifestGet)
	r.Head("/v1/storage/manifests/{name}", s.handleManifestHead)
	r.Put("/v1/storage/manifests/{name}/executable/{version}", s.handleExecutableStore)
	r.Get("/v1/storage/manifests/{name}/executable/{version}", s.handleExecutableGet)
	r.Post("/v1/storage/data", s.handleDataStore)
	r.Get("/v1/storage/data/{addr}", s.handleDataGet)

	r.Get("/health", metrics.HealthHandler())
	r.Get("/ready", metrics.ReadyHandler())
	r.Get("/live", metrics.LivenessHandler())
	r.Handle("/metrics", metrics.Handler())

	return r
}

func meshRelayHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(headerMeshRelay, "GNU/serval-mesh")
		next.ServeHTTP(w, r)
	})
}

func bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		metrics.APIRequestsTotal.WithLabelValues(r.Method, http.StatusText(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())

		log.WithComponent("api").Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("handled request")
	})
}

// writeError maps a tagged servalerr.Kind to the HTTP status codes
// spec.md §7 prescribes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch servalerr.KindOf(err) {
	case servalerr.KindAddressInvalid:
		status = http.StatusBadRequest
	case servalerr.KindNotFound:
		status = http.StatusNotFound
	case servalerr.KindServiceUnavailable:
		status = http.StatusServiceUnavailable
	case servalerr.KindTransport:
		status = http.StatusBadGateway
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(r.Body)
}
