package credits

import "fmt"

// Blockchain is the chain an action runs on
type Blockchain int

const (
	// OffChain actions are not specific to a blockchain
	OffChain Blockchain = iota
	Solana
	Polygon
	Ethereum
)

// Blockchains lists every known chain
func Blockchains() []Blockchain {
	return []Blockchain{OffChain, Solana, Polygon, Ethereum}
}

// String returns the kebab-case name used in credit sheets and events
func (b Blockchain) String() string {
	switch b {
	case OffChain:
		return "off-chain"
	case Solana:
		return "solana"
	case Polygon:
		return "polygon"
	case Ethereum:
		return "ethereum"
	default:
		return fmt.Sprintf("blockchain(%d)", int(b))
	}
}

// ParseBlockchain parses a chain name
func ParseBlockchain(s string) (Blockchain, error) {
	for _, b := range Blockchains() {
		if b.String() == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("credits: unknown blockchain %q", s)
}

func (b Blockchain) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Blockchain) UnmarshalText(text []byte) error {
	parsed, err := ParseBlockchain(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}
