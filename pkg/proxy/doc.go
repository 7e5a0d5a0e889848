/*
Package proxy implements role-aware request relaying.

A Table maps API path prefixes to the mesh role required to serve them
(for example, "/v1/scheduler" requires types.RoleScheduler). Middleware
consults the table for each incoming request: if this node advertises
the required role, the request is served locally; otherwise it is handed
to a Relay, which forwards it to the first peer currently advertising
that role via net/http/httputil.ReverseProxy.

# Header Preservation

Relaying strips Content-Length and Expect (relevant only to the original
hop) and the inbound Host header, then tags the response with
Proxied-From (the serving node's instance id). Proxied-For is set to
this node's instance id only when the inbound request doesn't already
carry one: the first relay stamps it with the originating node's id,
and every further hop leaves it untouched, so a multi-hop chain still
arrives at its terminus naming the original sender, not the last
intermediate node.

# Failure Modes

No peer advertising the required role yields 503 Service Unavailable and
increments serval_proxy_no_service_total. A peer that accepts the
connection but fails mid-request yields 502 Bad Gateway and increments
serval_proxy_failure_total.
*/
package proxy
