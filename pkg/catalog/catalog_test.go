package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/dswarm/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLeanDropsCosmeticFields(t *testing.T) {
	s := Status{Type: "dataswarm_manager", Project: "p", Name: "n", Owner: "o", Version: "v"}
	lean := s.Lean()
	assert.Equal(t, "", lean.Name)
	assert.Equal(t, "", lean.Owner)
	assert.Equal(t, "", lean.Version)
	assert.Equal(t, "p", lean.Project)
}

func TestClientPushSendsJSON(t *testing.T) {
	var got Status
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New([]string{srv.URL}, time.Second, func() Status {
		return Status{Type: "dataswarm_manager", Project: "proj"}
	}, zerolog.Nop())

	require.NoError(t, c.push(context.Background(), srv.URL, c.StatusFunc()))
	assert.Equal(t, "proj", got.Project)
}

func TestQueryFactoriesDecodesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]FactoryEntry{
			{Name: "f1", Project: "proj", MaxWorkers: 10},
		})
	}))
	defer srv.Close()

	c := New([]string{srv.URL}, time.Second, func() Status { return Status{} }, zerolog.Nop())
	entries, err := c.QueryFactories(context.Background(), srv.URL, "proj")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "f1", entries[0].Name)
	assert.Equal(t, 10, entries[0].MaxWorkers)
}

func TestSelectTrimTargetsCapsAtOverage(t *testing.T) {
	f := &types.FactoryInfo{ConnectedWorkers: 5, MaxWorkers: 2}
	targets := SelectTrimTargets(f, []string{"a", "b", "c", "d"})
	assert.Equal(t, []string{"a", "b", "c"}, targets)
}

func TestSelectTrimTargetsNoneWhenUnderCap(t *testing.T) {
	f := &types.FactoryInfo{ConnectedWorkers: 2, MaxWorkers: 10}
	assert.Nil(t, SelectTrimTargets(f, []string{"a"}))
}

func TestShouldDropFactory(t *testing.T) {
	now := time.Now()
	f := &types.FactoryInfo{ConnectedWorkers: 0, SeenAtCatalog: now.Add(-2 * time.Minute)}
	assert.True(t, ShouldDropFactory(f, now, time.Minute))

	f2 := &types.FactoryInfo{ConnectedWorkers: 1, SeenAtCatalog: now.Add(-2 * time.Minute)}
	assert.False(t, ShouldDropFactory(f2, now, time.Minute))
}
