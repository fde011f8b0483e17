package port

import "portfolio_aggregator/internal/domain/entity"

// TokenProvider defines the interface for fetching token definitions.
type TokenProvider interface {
	// GetTokensByNetwork returns a map of network chain id (as string) to the
	// tokens tracked on it.
	GetTokensByNetwork(activeNetworkDefs []entity.NetworkDefinition) (map[string][]entity.TokenInfo, error)
}
