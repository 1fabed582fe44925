package index

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

func TestIVF_BasisVectors(t *testing.T) {
	// Given: n_clusters=2, n_probe=2 and three basis vectors
	ix := NewIVF(Params{NClusters: 2, NProbe: 2})
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustAdd(t, ix, a, []float64{1, 0, 0, 0})
	mustAdd(t, ix, b, []float64{0, 1, 0, 0})
	mustAdd(t, ix, c, []float64{0, 0, 1, 0})

	// When: searching the first basis vector with k=1
	got, err := ix.Search([]float64{1, 0, 0, 0}, 1)
	require.NoError(t, err)

	// Then: the exact match is returned
	require.Len(t, got, 1)
	assert.Equal(t, a, got[0])
}

func TestIVF_FewerVectorsThanClusters(t *testing.T) {
	// Legal: the index degenerates to flat behavior.
	ix := NewIVF(Params{NClusters: 100, NProbe: 10})
	a, b := uuid.New(), uuid.New()
	mustAdd(t, ix, a, []float64{1, 0})
	mustAdd(t, ix, b, []float64{0, 1})

	stats := ix.Stats()
	assert.Equal(t, 2, stats.Count)

	got, err := ix.Search([]float64{0.9, 0.1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, got)
}

func TestIVF_RejectsZeroVector(t *testing.T) {
	ix := NewIVF(Params{})
	err := ix.Add(uuid.New(), []float64{0, 0, 0})
	require.Error(t, err)
	assert.Equal(t, vecerr.KindZeroVector, vecerr.KindOf(err))
	assert.Equal(t, 0, ix.Len())
}

func TestIVF_DeterministicClustering(t *testing.T) {
	// Same insertion order must yield identical clustering and results.
	vectors := unitVectors(16, 4, 5)
	ids := make([]uuid.UUID, len(vectors))
	for i := range ids {
		ids[i] = uuid.New()
	}

	build := func() *IVF {
		ix := NewIVF(Params{NClusters: 3, NProbe: 1})
		for i, v := range vectors {
			mustAdd(t, ix, ids[i], v)
		}
		return ix
	}

	first, second := build(), build()
	assert.Equal(t, first.Stats().ClusterSizes, second.Stats().ClusterSizes)

	query := vectors[7]
	got1, err := first.Search(query, 5)
	require.NoError(t, err)
	got2, err := second.Search(query, 5)
	require.NoError(t, err)
	assert.Equal(t, got1, got2)
}

func TestIVF_ClusterSizesCoverAllVectors(t *testing.T) {
	ix := NewIVF(Params{NClusters: 3, NProbe: 3})
	for _, v := range unitVectors(10, 4, 13) {
		mustAdd(t, ix, uuid.New(), v)
	}

	stats := ix.Stats()
	total := 0
	for _, size := range stats.ClusterSizes {
		total += size
	}
	assert.Equal(t, 10, total, "every vector belongs to exactly one cluster")
	assert.LessOrEqual(t, len(stats.ClusterSizes), 3)
}

func TestIVF_SerializeFiftyVectors(t *testing.T) {
	// Serialize an IVF index with 50 vectors, discard it, deserialize,
	// rerun a fixed query: the first 5 results match in order.
	vectors := unitVectors(50, 8, 17)
	ix := NewIVF(Params{NClusters: 8, NProbe: 8})
	for _, v := range vectors {
		mustAdd(t, ix, uuid.New(), v)
	}

	query := unitVectors(1, 8, 23)[0]
	before, err := ix.Search(query, 5)
	require.NoError(t, err)
	require.Len(t, before, 5)

	blob, err := ix.MarshalBlob()
	require.NoError(t, err)
	ix = nil

	restored, err := UnmarshalBlob(blob)
	require.NoError(t, err)
	after, err := restored.Search(query, 5)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestIVF_DeleteRebuildsClusters(t *testing.T) {
	ix := NewIVF(Params{NClusters: 2, NProbe: 2})
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	mustAdd(t, ix, a, []float64{1, 0, 0})
	mustAdd(t, ix, b, []float64{0, 1, 0})
	mustAdd(t, ix, c, []float64{0, 0, 1})

	// Deleting a seed vector reseeds clustering from remaining order.
	ix.Delete(a)
	assert.Equal(t, 2, ix.Len())

	got, err := ix.Search([]float64{0, 1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b, c}, got)
}
