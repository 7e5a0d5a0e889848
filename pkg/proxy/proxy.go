// Package proxy implements role-aware request relaying: a route table
// maps API path prefixes to the mesh role required to serve them, and a
// Relay forwards a request to a peer advertising that role when this
// node cannot handle it locally.
package proxy

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/types"
)

const (
	// HeaderProxiedFor carries the originating node's instance id on the
	// outbound (request) side. Set once by the first relay and preserved
	// across further hops, so a multi-hop relay still names the original
	// sender rather than the last intermediate node.
	HeaderProxiedFor = "Proxied-For"
	// HeaderProxiedFrom carries the serving node's instance id on the
	// return (response) side.
	HeaderProxiedFrom = "Proxied-From"
)

// PeerLister is the subset of mesh membership a Relay needs: the set of
// peers currently advertising a given role. Satisfied by *mesh.Mesh.
type PeerLister interface {
	PeersWithRole(role types.Role) []types.PeerMetadata
}

var (
	noServiceCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "serval_proxy_no_service_total",
		Help: "Relay attempts that found no peer advertising the required role.",
	})
	failureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "serval_proxy_failure_total",
		Help: "Relay attempts that found a peer but failed to complete the request.",
	})
)

func init() {
	prometheus.MustRegister(noServiceCounter, failureCounter)
}

// Relay forwards requests this node cannot serve locally to a peer that
// can.
type Relay struct {
	peers      PeerLister
	instanceID string
}

// NewRelay builds a Relay that looks up candidate peers via peers and
// tags outgoing requests with instanceID.
func NewRelay(peers PeerLister, instanceID string) *Relay {
	return &Relay{peers: peers, instanceID: instanceID}
}

// ServeRole relays r to the first peer advertising role, writing the
// response (or an error status) to w. It never blocks waiting for a peer
// to appear: if none is currently known, it fails immediately with 503.
func (rl *Relay) ServeRole(w http.ResponseWriter, r *http.Request, role types.Role) {
	candidates := rl.peers.PeersWithRole(role)
	if len(candidates) == 0 {
		noServiceCounter.Inc()
		log.WithComponent("proxy").Warn().Str("role", string(role)).Msg("no peer advertises the requested role")
		http.Error(w, fmt.Sprintf("no peer available for role %q", role), http.StatusServiceUnavailable)
		return
	}

	peer := candidates[0]
	target, err := url.Parse(fmt.Sprintf("http://%s", peer.HTTPAddress()))
	if err != nil {
		failureCounter.Inc()
		http.Error(w, "invalid peer address", http.StatusBadGateway)
		return
	}

	sourceInstanceID := rl.instanceID
	targetInstanceID := peer.Identity.InstanceID

	reverseProxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = ""
			req.Header.Del("Content-Length")
			req.Header.Del("Expect")
			if req.Header.Get(HeaderProxiedFor) == "" {
				req.Header.Set(HeaderProxiedFor, sourceInstanceID)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Add(HeaderProxiedFrom, targetInstanceID)
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			failureCounter.Inc()
			log.WithComponent("proxy").Warn().Err(err).Str("peer", peer.HTTPAddress()).Msg("relay to peer failed")
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}

	reverseProxy.ServeHTTP(w, r)
}

// Route maps an incoming request path to the mesh role required to
// serve it.
type Route struct {
	Prefix string
	Role   types.Role
}

// Table is an ordered list of path-prefix-to-role rules, matched longest
// prefix first.
type Table []Route

// RoleFor returns the role required to serve path, and whether any rule
// matched.
func (t Table) RoleFor(path string) (types.Role, bool) {
	var best Route
	matched := false
	for _, route := range t {
		if strings.HasPrefix(path, route.Prefix) && len(route.Prefix) >= len(best.Prefix) {
			best = route
			matched = true
		}
	}
	return best.Role, matched
}

// Middleware returns an http middleware that serves a request locally
// when selfRoles includes the role the route table assigns to it, and
// otherwise relays it via rl. Requests matching no rule always pass
// through locally, on the assumption the handler mux will 404 them.
func Middleware(table Table, selfRoles []types.Role, rl *Relay) func(http.Handler) http.Handler {
	has := make(map[types.Role]bool, len(selfRoles))
	for _, r := range selfRoles {
		has[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := table.RoleFor(r.URL.Path)
			if !ok || has[role] {
				next.ServeHTTP(w, r)
				return
			}
			rl.ServeRole(w, r, role)
		})
	}
}
