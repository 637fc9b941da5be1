package types

// NodeAddress is one consensus node as published by the mirror network.
type NodeAddress struct {
	NodeID      int64     `json:"node_id"`
	AccountID   AccountID `json:"account_id"`
	Endpoints   []string  `json:"endpoints"` // host:port
	Description string    `json:"description,omitempty"`
	Stake       int64     `json:"stake,omitempty"`
}

// AddressBook is the full list of consensus nodes.
type AddressBook struct {
	Nodes []NodeAddress `json:"nodes"`
}

// Addresses maps each node account to its first endpoint. Nodes without
// endpoints are skipped.
func (b AddressBook) Addresses() map[AccountID]string {
	out := make(map[AccountID]string, len(b.Nodes))
	for _, n := range b.Nodes {
		if len(n.Endpoints) == 0 {
			continue
		}
		out[n.AccountID] = n.Endpoints[0]
	}
	return out
}
