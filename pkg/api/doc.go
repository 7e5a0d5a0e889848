/*
Package api wires mesh membership, the storage façade, the scheduler,
and the runner behind one HTTP surface: a go-chi router every peer
exposes, regardless of which roles it advertises.

# Architecture

Every request passes through the same middleware chain before reaching
a route handler:

	RequestID → requestLogger → meshRelayHeader → bodyLimit → proxy.Middleware → handler

proxy.Middleware consults a Table mapping path prefixes to the mesh
role required to serve them (Scheduler for /v1/scheduler, Runner for
/v1/jobs, Storage for /v1/storage). When this node's advertised Roles
don't cover the required role, the request is relayed verbatim to a
peer that does via pkg/proxy.Relay; otherwise it falls through to the
local handler. /monitor/* and /v1/mesh/* carry no role requirement and
always serve locally.

Handlers are thin: they decode the request, call into Server.Mesh /
Storage / Scheduler / Runner, and translate the result (or a tagged
*servalerr.Error) into a response and status code. writeError
implements the kind-to-status mapping every error response follows:
AddressInvalid → 400, NotFound → 404, ServiceUnavailable → 503,
Transport → 502, anything else → 500. Job execution is the one
exception to "response is JSON": handlers_jobs.go writes a guest's raw
stdout (or stderr, on a non-zero exit) as the body, matching what a
caller running the executable directly would see.

# Health and metrics

/health, /ready, and /live are mounted directly from pkg/metrics
rather than run behind a second listener: this node has no gRPC
server competing for a port, so one router serves both the domain
routes and the operational ones. /metrics exposes the Prometheus
registry the same way.

# Handlers

handlers_mesh.go answers /monitor/ping, /monitor/status, and the
/v1/mesh membership routes straight from the Mesh handle.
handlers_scheduler.go decodes enqueue/claim/tickle requests into
scheduler.Requirement and scheduler.Priority values. handlers_jobs.go
delegates to pkg/runner for direct job execution and history.
handlers_storage.go is the thickest of the four: it (de)serializes
TOML manifests at the wire boundary (manifests are stored and proxied
as decoded types.Manifest values; the façade never sees TOML) and
streams raw executable/blob bytes.
*/
package api
