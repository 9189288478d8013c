package storage

import (
	"testing"

	"github.com/cuemby/dswarm/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestBoltStoreCategoryRoundTrip(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	c := &types.Category{Name: "big", Mode: types.AllocationMinWaste}
	assert.NoError(t, store.SaveCategory(c))

	got, err := store.GetCategory("big")
	assert.NoError(t, err)
	assert.Equal(t, types.AllocationMinWaste, got.Mode)

	list, err := store.ListCategories()
	assert.NoError(t, err)
	assert.Len(t, list, 1)

	assert.NoError(t, store.DeleteCategory("big"))
	_, err = store.GetCategory("big")
	assert.Error(t, err)
}

func TestBoltStoreBlocklistRoundTrip(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	entry := &types.BlocklistEntry{Host: "10.0.0.5", Blocked: true, TimesBlocked: 1}
	assert.NoError(t, store.SaveBlocklistEntry(entry))

	got, err := store.GetBlocklistEntry("10.0.0.5")
	assert.NoError(t, err)
	assert.True(t, got.Blocked)

	assert.NoError(t, store.DeleteBlocklistEntry("10.0.0.5"))
	_, err = store.GetBlocklistEntry("10.0.0.5")
	assert.Error(t, err)
}

func TestBoltStoreFactoryRoundTrip(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	assert.NoError(t, err)
	defer func() { _ = store.Close() }()

	f := &types.FactoryInfo{Name: "batch-pool", MaxWorkers: 50}
	assert.NoError(t, store.SaveFactory(f))

	list, err := store.ListFactories()
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 50, list[0].MaxWorkers)
}
