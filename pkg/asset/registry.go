package asset

import (
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry manages the assets known to a node.
type Registry struct {
	mu       sync.RWMutex
	byAddr   map[common.Address]Asset
	bySymbol map[string]Asset
	ordered  []Asset // registration order
}

func NewRegistry() *Registry {
	return &Registry{
		byAddr:   make(map[common.Address]Asset),
		bySymbol: make(map[string]Asset),
	}
}

// Register adds an asset. Addresses and symbols must be unique.
func (r *Registry) Register(a Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byAddr[a.Address()]; exists {
		return fmt.Errorf("asset %s already registered", a.Address().Hex())
	}
	sym := strings.ToUpper(a.Symbol())
	if _, exists := r.bySymbol[sym]; exists {
		return fmt.Errorf("asset symbol %s already registered", a.Symbol())
	}
	r.byAddr[a.Address()] = a
	r.bySymbol[sym] = a
	r.ordered = append(r.ordered, a)
	return nil
}

func (r *Registry) Get(addr common.Address) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byAddr[addr]
	return a, ok
}

// BySymbol is case-insensitive.
func (r *Registry) BySymbol(symbol string) (Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bySymbol[strings.ToUpper(symbol)]
	return a, ok
}

// Resolve accepts either a hex address or a symbol.
func (r *Registry) Resolve(ref string) (Asset, error) {
	if common.IsHexAddress(ref) {
		if a, ok := r.Get(common.HexToAddress(ref)); ok {
			return a, nil
		}
		return nil, fmt.Errorf("unknown asset %s", ref)
	}
	if a, ok := r.BySymbol(ref); ok {
		return a, nil
	}
	return nil, fmt.Errorf("unknown asset %s", ref)
}

// List returns all assets in registration order, which at genesis is the
// order the tokens were deployed.
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Asset(nil), r.ordered...)
}
