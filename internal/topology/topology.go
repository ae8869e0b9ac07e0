// Package topology describes the fixed two-site deployment: this site
// and its one peer. Adapted from the teacher's cluster.Membership,
// narrowed from dynamic N-node join/leave to the 2-site pair this spec
// actually has — see DESIGN.md for why the ring/consistent-hash part of
// the teacher's membership code was dropped instead of carried here.
package topology

// Site describes one deployed site's network addresses.
type Site struct {
	ID int `yaml:"id"`
	// GatewayAddr is where the Load Gateway listens for Client Producers.
	GatewayAddr string `yaml:"gatewayAddr"`
	// EngineAddr is where the Storage Engine listens for its peer
	// (heartbeat poll, bulk catalog fetch, and failover loan calls).
	EngineAddr string `yaml:"engineAddr"`
}

// Topology is this process's view of the two-site deployment.
type Topology struct {
	Local Site `yaml:"local"`
	Peer  Site `yaml:"peer"`
}
