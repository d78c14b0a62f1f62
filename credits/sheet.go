package credits

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// LineItem is an action a service charges credits for. String returns the
// action name used as the credit sheet table key.
type LineItem interface {
	comparable
	String() string
}

type sheetKey[I LineItem] struct {
	item  I
	chain Blockchain
}

// Sheet maps (line item, blockchain) pairs to their cost in credits
type Sheet[I LineItem] struct {
	costs map[sheetKey[I]]uint64
}

// LoadSheet reads a TOML credit sheet from path.
//
// The file holds one table per action, keyed by blockchain name:
//
//	[mint-edition]
//	solana = 5
//	polygon = 10
//
// Every item must have a table. Chains missing from a table have no price.
func LoadSheet[I LineItem](path string, items []I) (*Sheet[I], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credits: read credit sheet: %w", err)
	}
	return ParseSheet(data, items)
}

// ParseSheet parses a TOML credit sheet
func ParseSheet[I LineItem](data []byte, items []I) (*Sheet[I], error) {
	var raw map[string]map[string]uint64
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("credits: syntax error in credit sheet: %w", err)
	}

	s := &Sheet[I]{costs: make(map[sheetKey[I]]uint64)}
	for _, item := range items {
		prices, ok := raw[item.String()]
		if !ok {
			return nil, fmt.Errorf("credits: missing entry in credit sheet for %s", item)
		}
		for _, chain := range Blockchains() {
			if cost, ok := prices[chain.String()]; ok {
				s.costs[sheetKey[I]{item: item, chain: chain}] = cost
			}
		}
	}
	return s, nil
}

// Cost returns the price of item on chain
func (s *Sheet[I]) Cost(item I, chain Blockchain) (uint64, bool) {
	cost, ok := s.costs[sheetKey[I]{item: item, chain: chain}]
	return cost, ok
}

// Len returns the number of priced (item, chain) pairs
func (s *Sheet[I]) Len() int {
	return len(s.costs)
}
