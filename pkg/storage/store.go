package storage

import (
	"github.com/cuemby/dswarm/pkg/types"
)

// Store defines the interface for persisted manager state (spec §4.12):
// category allocation history, blocklist entries, and known factories.
// Task and worker state is transient and never persisted.
type Store interface {
	// Categories
	SaveCategory(c *types.Category) error
	GetCategory(name string) (*types.Category, error)
	ListCategories() ([]*types.Category, error)
	DeleteCategory(name string) error

	// Blocklist
	SaveBlocklistEntry(b *types.BlocklistEntry) error
	GetBlocklistEntry(host string) (*types.BlocklistEntry, error)
	ListBlocklistEntries() ([]*types.BlocklistEntry, error)
	DeleteBlocklistEntry(host string) error

	// Factories
	SaveFactory(f *types.FactoryInfo) error
	GetFactory(name string) (*types.FactoryInfo, error)
	ListFactories() ([]*types.FactoryInfo, error)
	DeleteFactory(name string) error

	// Utility
	Close() error
}
