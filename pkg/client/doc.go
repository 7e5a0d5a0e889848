/*
Package client is the concrete storage.ProxyClient used when a node has no
local blob cache and no bucket configured: every manifest and executable
read/write is relayed to a peer advertising the storage role instead.

Unlike pkg/proxy's Relay, which forwards an inbound request verbatim to
whichever peer is chosen, Client makes its own outbound calls against a
specific peer's storage routes (/v1/storage/manifests...), so it can
decode the TOML manifest body or raw executable bytes into Go values for
the storage façade to return.

# Usage

	dialer := func() (storage.ProxyClient, error) {
		peers := m.PeersWithRole(types.RoleStorage)
		if len(peers) == 0 {
			return nil, servalerr.New(servalerr.KindServiceUnavailable, "no storage peer")
		}
		return client.NewClient(peers[0].HTTPAddress()), nil
	}
	s := storage.New(nil, nil, dialer)

Each call to dialer re-resolves the peer; Client itself holds no retry or
caching logic, matching storage.ProxyDialer's contract that membership may
have changed between calls.
*/
package client
