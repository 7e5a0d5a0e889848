/*
Package mesh implements gossip-based peer membership.

Each node gossips a small identity payload — instance id, advertised HTTP
port, advertised roles — to every other node via
github.com/hashicorp/memberlist. Membership is eventually consistent:
there is no leader election and no log replication, only a continuously
converging view of who else is reachable.

# Identity Envelope

The identity payload is wrapped in a version-prefixed envelope so a
future agent version can change the wire format without breaking older
peers mid-rollout:

	{"v": 1, "p": {"instance_id": "...", "http_port": 8080, "roles": ["runner"]}}

# Usage

	m, err := mesh.New(mesh.Config{Identity: self, BindAddr: addr, BindPort: 8181})
	err = m.Join(seedAddrs)
	runners := m.PeersWithRole(types.RoleRunner)
*/
package mesh
