package index

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// testParams keeps IVF exhaustive (nProbe = nClusters) so the
// deterministic recall properties hold for every variant.
var testParams = Params{
	NClusters:      4,
	NProbe:         4,
	M:              8,
	EfConstruction: 16,
	Seed:           42,
}

// allVariants builds one empty index per variant for property tests.
func allVariants(t *testing.T) map[Type]VectorIndex {
	t.Helper()
	out := make(map[Type]VectorIndex)
	for _, typ := range []Type{TypeFlat, TypeIVF, TypeHNSW} {
		ix, err := New(typ, testParams)
		require.NoError(t, err)
		out[typ] = ix
	}
	return out
}

// unitVectors returns n distinct random unit vectors of the given
// dimension from a fixed seed.
func unitVectors(n, dim int, seed int64) [][]float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([][]float64, n)
	for i := range out {
		v := make([]float64, dim)
		var norm float64
		for norm == 0 {
			for j := range v {
				v[j] = rng.NormFloat64()
			}
			norm = 0
			for _, x := range v {
				norm += x * x
			}
		}
		out[i] = v
	}
	return out
}

func mustAdd(t *testing.T, ix VectorIndex, id uuid.UUID, vec []float64) {
	t.Helper()
	require.NoError(t, ix.Add(id, vec))
}

func TestParseType(t *testing.T) {
	for _, valid := range []string{"flat", "ivf", "hnsw"} {
		typ, err := ParseType(valid)
		require.NoError(t, err)
		assert.Equal(t, Type(valid), typ)
	}

	_, err := ParseType("annoy")
	require.Error(t, err)
	assert.Equal(t, vecerr.KindUnknownIndexType, vecerr.KindOf(err))
}

func TestUnmarshalBlob_UnknownTag(t *testing.T) {
	_, err := UnmarshalBlob([]byte(`{"type":"kdtree"}`))
	require.Error(t, err)
	assert.Equal(t, vecerr.KindUnknownIndexType, vecerr.KindOf(err))
}

func TestUnmarshalBlob_Garbage(t *testing.T) {
	_, err := UnmarshalBlob([]byte(`{{{`))
	require.Error(t, err)
	assert.Equal(t, vecerr.KindPersistenceError, vecerr.KindOf(err))
}

// Property 1: deserialize(serialize(I)) preserves element set and search results.
func TestProperty_RoundTrip(t *testing.T) {
	vectors := unitVectors(20, 6, 7)
	ids := make([]uuid.UUID, len(vectors))
	for i := range ids {
		ids[i] = uuid.New()
	}

	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			for i, v := range vectors {
				mustAdd(t, ix, ids[i], v)
			}

			query := vectors[3]
			before, err := ix.Search(query, 5)
			require.NoError(t, err)

			blob, err := ix.MarshalBlob()
			require.NoError(t, err)
			restored, err := UnmarshalBlob(blob)
			require.NoError(t, err)

			assert.Equal(t, ix.Len(), restored.Len())
			assert.Equal(t, ix.Dimension(), restored.Dimension())
			assert.Equal(t, typ, restored.Type())

			after, err := restored.Search(query, 5)
			require.NoError(t, err)
			assert.Equal(t, before, after, "search results must survive a round-trip")

			// Re-serializing without mutations yields equivalent state.
			blob2, err := restored.MarshalBlob()
			require.NoError(t, err)
			restored2, err := UnmarshalBlob(blob2)
			require.NoError(t, err)
			again, err := restored2.Search(query, 5)
			require.NoError(t, err)
			assert.Equal(t, before, again)
		})
	}
}

// Property 2: inserting then deleting an id restores prior search results.
func TestProperty_AddDeleteIdentity(t *testing.T) {
	vectors := unitVectors(12, 5, 11)
	extra := unitVectors(1, 5, 99)[0]

	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			for _, v := range vectors {
				mustAdd(t, ix, uuid.New(), v)
			}

			query := vectors[0]
			before, err := ix.Search(query, 6)
			require.NoError(t, err)

			transient := uuid.New()
			mustAdd(t, ix, transient, extra)
			ix.Delete(transient)

			after, err := ix.Search(query, 6)
			require.NoError(t, err)
			assert.Equal(t, before, after)
		})
	}
}

// Property 3: after one successful insert, differently-sized inserts fail
// with DimensionMismatch and do not alter state.
func TestProperty_DimensionPinning(t *testing.T) {
	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			first := uuid.New()
			mustAdd(t, ix, first, []float64{1, 0, 0, 0})

			err := ix.Add(uuid.New(), []float64{1, 0})
			require.Error(t, err)
			assert.Equal(t, vecerr.KindDimensionMismatch, vecerr.KindOf(err))

			assert.Equal(t, 1, ix.Len())
			assert.Equal(t, 4, ix.Dimension())

			got, err := ix.Search([]float64{1, 0, 0, 0}, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, first, got[0])
		})
	}
}

// Property 4: search(v, 1) for a stored v returns v's id. Deterministic
// for flat always, and for IVF with nProbe = nClusters.
func TestProperty_ExactMatchRecall(t *testing.T) {
	vectors := unitVectors(30, 8, 21)
	ids := make([]uuid.UUID, len(vectors))
	for i := range ids {
		ids[i] = uuid.New()
	}

	for _, typ := range []Type{TypeFlat, TypeIVF} {
		t.Run(string(typ), func(t *testing.T) {
			ix, err := New(typ, testParams)
			require.NoError(t, err)
			for i, v := range vectors {
				mustAdd(t, ix, ids[i], v)
			}

			for i, v := range vectors {
				got, err := ix.Search(v, 1)
				require.NoError(t, err)
				require.Len(t, got, 1)
				assert.Equal(t, ids[i], got[0])
			}
		})
	}
}

// Property 5: search(q, k1) is an ordered prefix of search(q, k2) for k1 <= k2.
func TestProperty_KMonotonicity(t *testing.T) {
	// Small enough that every variant's candidate generation is
	// effectively exhaustive, so the prefix law is exact.
	vectors := unitVectors(12, 6, 31)
	query := unitVectors(1, 6, 77)[0]

	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			for _, v := range vectors {
				mustAdd(t, ix, uuid.New(), v)
			}

			larger, err := ix.Search(query, 10)
			require.NoError(t, err)
			for k := 1; k < 10; k++ {
				smaller, err := ix.Search(query, k)
				require.NoError(t, err)
				assert.Equal(t, larger[:len(smaller)], smaller, "k=%d must be a prefix of k=10", k)
			}
		})
	}
}

// Property 7: delete of an absent id is a no-op.
func TestProperty_IdempotentDelete(t *testing.T) {
	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			id := uuid.New()
			mustAdd(t, ix, id, []float64{0, 1, 0})

			ix.Delete(uuid.New()) // never inserted
			ix.Delete(id)
			ix.Delete(id) // second delete of same id

			assert.Equal(t, 0, ix.Len())
		})
	}
}

func TestProperty_EmptyIndexSearch(t *testing.T) {
	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			got, err := ix.Search([]float64{1, 0}, 3)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestProperty_ReplaceSameID(t *testing.T) {
	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			id := uuid.New()
			mustAdd(t, ix, id, []float64{1, 0, 0, 0})
			mustAdd(t, ix, id, []float64{0, 1, 0, 0})

			assert.Equal(t, 1, ix.Len())

			got, err := ix.Search([]float64{0, 1, 0, 0}, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, id, got[0])
		})
	}
}

func TestProperty_TiesBrokenByInsertionOrder(t *testing.T) {
	for typ, ix := range allVariants(t) {
		t.Run(string(typ), func(t *testing.T) {
			first := uuid.New()
			second := uuid.New()
			// Identical direction: similarities tie exactly.
			mustAdd(t, ix, first, []float64{0, 1, 0, 0})
			mustAdd(t, ix, second, []float64{0, 1, 0, 0})

			got, err := ix.Search([]float64{0, 1, 0, 0}, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, first, got[0])
			assert.Equal(t, second, got[1])
		})
	}
}
