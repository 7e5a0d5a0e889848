// Package mesh implements gossip-based membership for the agent: nodes
// discover each other and exchange a small identity payload (instance id,
// advertised HTTP port, advertised roles) over github.com/hashicorp/memberlist,
// without any central coordinator.
package mesh

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/memberlist"

	"github.com/serval-mesh/agent/pkg/log"
	"github.com/serval-mesh/agent/pkg/servalerr"
	"github.com/serval-mesh/agent/pkg/types"
)

// leaveTimeout bounds how long Leave waits for the departure broadcast to
// propagate before shutting the local node down unconditionally.
const leaveTimeout = 5 * time.Second

// identityVersion is the version number carried in the "v" field of every
// gossiped identity envelope, so future agents can switch on it to decode
// older or newer encodings without breaking compatibility.
const identityVersion byte = 1

// Mesh wraps a memberlist cluster and exposes the peer directory in terms
// of this agent's domain types instead of memberlist's raw node list.
type Mesh struct {
	list     *memberlist.Memberlist
	identity types.PeerIdentity

	joins   chan types.PeerMetadata
	departs chan types.PeerMetadata
}

// Config controls how a Mesh binds and advertises itself.
type Config struct {
	Identity types.PeerIdentity
	BindAddr string
	BindPort int
}

// New creates a Mesh bound and ready to join, but not yet connected to any
// peers. Call Join to connect to an existing cluster.
func New(cfg Config) (*Mesh, error) {
	payload, err := encodeIdentity(cfg.Identity)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindTransport, "encode mesh identity", err)
	}

	m := &Mesh{
		identity: cfg.Identity,
		joins:    make(chan types.PeerMetadata, 32),
		departs:  make(chan types.PeerMetadata, 32),
	}

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.AdvertisePort = cfg.BindPort
	mlConfig.Name = cfg.Identity.InstanceID
	mlConfig.Delegate = &delegate{payload: payload}
	mlConfig.Events = &eventDelegate{mesh: m}

	list, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, servalerr.Wrap(servalerr.KindTransport, "start mesh membership", err)
	}
	m.list = list
	return m, nil
}

// Join contacts one or more existing mesh members ("host:port") and joins
// the cluster they belong to. An empty list is valid: it starts a
// single-node mesh that others can join later.
func (m *Mesh) Join(existing []string) error {
	if len(existing) == 0 {
		return nil
	}
	if _, err := m.list.Join(existing); err != nil {
		return servalerr.Wrap(servalerr.KindTransport, "join mesh", err)
	}
	return nil
}

// Leave gracefully announces departure and shuts the local node down.
func (m *Mesh) Leave() error {
	if err := m.list.Leave(leaveTimeout); err != nil {
		return servalerr.Wrap(servalerr.KindTransport, "leave mesh", err)
	}
	return m.list.Shutdown()
}

// Self returns this node's own advertised identity.
func (m *Mesh) Self() types.PeerIdentity {
	return m.identity
}

// Peers returns the current view of every other node in the mesh, as
// reported by memberlist's gossiped node list. This list may lag reality
// slightly; membership is eventually consistent, not linearizable.
func (m *Mesh) Peers() []types.PeerMetadata {
	members := m.list.Members()
	peers := make([]types.PeerMetadata, 0, len(members))
	for _, member := range members {
		if member.Name == m.identity.InstanceID {
			continue
		}
		identity, err := decodeIdentity(member.Meta)
		if err != nil {
			continue
		}
		peers = append(peers, types.PeerMetadata{
			Identity: identity,
			Address:  member.Addr.String(),
		})
	}
	return peers
}

// PeersWithRole filters Peers to those advertising the given role with a
// reachable HTTP address; a peer advertising a role but running as a pure
// observer (no HTTP port) is excluded.
func (m *Mesh) PeersWithRole(role types.Role) []types.PeerMetadata {
	var matches []types.PeerMetadata
	for _, p := range m.Peers() {
		if p.Identity.HasRole(role) && p.HTTPAddress() != "" {
			matches = append(matches, p)
		}
	}
	return matches
}

// DiscoverPeers returns a channel that receives a PeerMetadata each time a
// new node joins the mesh.
func (m *Mesh) DiscoverPeers() <-chan types.PeerMetadata {
	return m.joins
}

// DiscoverDepartures returns a channel that receives a PeerMetadata each
// time a node leaves or is declared dead.
func (m *Mesh) DiscoverDepartures() <-chan types.PeerMetadata {
	return m.departs
}

// Fingerprint returns a short, stable summary of mesh membership (its own
// instance id plus the number of known mesh members, this node
// included), suitable for a cheap equality check between two status
// snapshots.
func (m *Mesh) Fingerprint() string {
	return fmt.Sprintf("%s:%d", m.identity.InstanceID, len(m.list.Members()))
}

type delegate struct {
	payload []byte
}

func (d *delegate) NodeMeta(limit int) []byte {
	if len(d.payload) > limit {
		return d.payload[:limit]
	}
	return d.payload
}

func (d *delegate) NotifyMsg([]byte)                           {}
func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (d *delegate) LocalState(join bool) []byte                { return nil }
func (d *delegate) MergeRemoteState(buf []byte, join bool)     {}

type eventDelegate struct {
	mesh *Mesh
}

func (e *eventDelegate) NotifyJoin(n *memberlist.Node) {
	identity, err := decodeIdentity(n.Meta)
	if err != nil {
		log.WithComponent("mesh").Warn().Str("node", n.Name).Msg("peer joined with undecodable identity")
		return
	}
	meta := types.PeerMetadata{Identity: identity, Address: n.Addr.String()}
	log.WithComponent("mesh").Info().Str("instance_id", identity.InstanceID).Msg("peer joined")
	select {
	case e.mesh.joins <- meta:
	default:
	}
}

func (e *eventDelegate) NotifyLeave(n *memberlist.Node) {
	identity, err := decodeIdentity(n.Meta)
	if err != nil {
		return
	}
	meta := types.PeerMetadata{Identity: identity, Address: n.Addr.String()}
	log.WithComponent("mesh").Info().Str("instance_id", identity.InstanceID).Msg("peer departed")
	select {
	case e.mesh.departs <- meta:
	default:
	}
}

func (e *eventDelegate) NotifyUpdate(*memberlist.Node) {}

// envelope is the wire form of a gossiped identity: a JSON object whose
// "v" field holds the version and whose "p" field holds the JSON-encoded
// identity payload. JSON is used rather
// than a binary codec because memberlist's metadata limit (512 bytes by
// default) comfortably holds an identity envelope in practice, and no
// third-party binary codec in this codebase's dependency set is wired to
// any other concern that would justify adding one here.
type envelope struct {
	Version byte            `json:"v"`
	Payload json.RawMessage `json:"p"`
}

type wireIdentity struct {
	InstanceID string       `json:"instance_id"`
	HTTPPort   *uint16      `json:"http_port,omitempty"`
	Roles      []types.Role `json:"roles"`
}

func encodeIdentity(identity types.PeerIdentity) ([]byte, error) {
	wire := wireIdentity{
		InstanceID: identity.InstanceID,
		HTTPPort:   identity.HTTPPort,
		Roles:      identity.Roles,
	}
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Version: identityVersion, Payload: payload})
}

func decodeIdentity(encoded []byte) (types.PeerIdentity, error) {
	if len(encoded) == 0 {
		return types.PeerIdentity{}, fmt.Errorf("empty identity payload")
	}
	var env envelope
	if err := json.Unmarshal(encoded, &env); err != nil {
		return types.PeerIdentity{}, err
	}
	if env.Version != identityVersion {
		return types.PeerIdentity{}, fmt.Errorf("unsupported identity envelope version %d", env.Version)
	}
	var wire wireIdentity
	if err := json.Unmarshal(env.Payload, &wire); err != nil {
		return types.PeerIdentity{}, err
	}
	return types.PeerIdentity{
		InstanceID: wire.InstanceID,
		HTTPPort:   wire.HTTPPort,
		Roles:      wire.Roles,
	}, nil
}

// ResolveBindAddr picks the IPv4 address of the named interface, or the
// first viable non-loopback interface if name is empty.
func ResolveBindAddr(name string) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", servalerr.Wrap(servalerr.KindTransport, "list network interfaces", err)
	}

	for _, iface := range ifaces {
		if name != "" && iface.Name != name {
			continue
		}
		if name == "" && iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			return ip4.String(), nil
		}
	}

	if name != "" {
		return "", servalerr.New(servalerr.KindTransport, fmt.Sprintf("interface %q not found or has no usable address", name))
	}
	return "", servalerr.New(servalerr.KindTransport, "no usable network interface found")
}
