package domain

// Pool is the trading pool chosen for a token on one network.
type Pool struct {
	Token        string
	Network      string
	Address      string
	DiscoveredAt int64 // Unix seconds
}
