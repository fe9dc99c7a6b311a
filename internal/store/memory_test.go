package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryAlarmStoreSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryAlarmStore()

	a := Alarm{ID: "a1", Type: "stale_tle_data", Severity: SeverityWarning}
	require.NoError(t, s.Save(ctx, a))

	got, ok, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "stale_tle_data", got.Type)

	require.NoError(t, s.Delete(ctx, "a1"))
	_, ok, err = s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryConjunctionStoreByAssetAndSecondary(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryConjunctionStore()

	c := Conjunction{ID: "c1", AssetID: "sat-1", SecondaryObjectID: "obj-9"}
	require.NoError(t, s.Upsert(ctx, c))

	got, ok, err := s.ByAssetAndSecondary(ctx, "sat-1", "obj-9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c1", got.ID)

	_, ok, err = s.ByAssetAndSecondary(ctx, "sat-1", "obj-does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCOAStoreByConjunction(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryCOAStore()

	require.NoError(t, s.Save(ctx, COA{ID: "coa-1", ConjunctionID: "c1"}))
	require.NoError(t, s.Save(ctx, COA{ID: "coa-2", ConjunctionID: "c1"}))
	require.NoError(t, s.Save(ctx, COA{ID: "coa-3", ConjunctionID: "c2"}))

	matches, err := s.ByConjunction(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMemoryMissionStoreByCOA(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryMissionStore()

	require.NoError(t, s.Save(ctx, Mission{ID: "m1", COAID: "coa-1"}))
	require.NoError(t, s.Save(ctx, Mission{ID: "m2", COAID: "coa-1"}))
	require.NoError(t, s.Save(ctx, Mission{ID: "m3", COAID: "coa-2"}))

	matches, err := s.ByCOA(ctx, "coa-1")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestMemoryGroundStationStoreSeeded(t *testing.T) {
	ctx := context.Background()
	gs := GroundStation{ID: "gs-1", Name: "Svalbard", Online: true}
	s := NewMemoryGroundStationStore(gs)

	got, ok, err := s.Get(ctx, "gs-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Online)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryCatalogStoreSeeded(t *testing.T) {
	ctx := context.Background()
	obj := CatalogObject{ID: "obj-1", Name: "debris-1"}
	s := NewMemoryCatalogStore(obj)

	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "debris-1", all[0].Name)
}
