package index

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/vectormath"
)

// IVF partitions normalized vectors into coarse cells and scans only the
// nProbe most similar cells at query time.
//
// Clusters are rebuilt on every structural mutation with a deterministic
// policy: the first min(n, nClusters) ids in insertion order seed the
// centers, then every vector joins the center with the highest cosine
// similarity, ties going to the lowest cluster index. Insertion order is
// the only input, so a rebuilt index always clusters identically.
type IVF struct {
	dimension int
	nClusters int
	nProbe    int

	vectors     map[uuid.UUID][]float64 // normalized on insert
	order       *insertionOrder
	centers     [][]float64
	assignments map[int][]uuid.UUID // cluster index -> member ids, insertion-ordered
}

var _ VectorIndex = (*IVF)(nil)

// NewIVF creates an empty IVF index.
func NewIVF(params Params) *IVF {
	if params.NClusters <= 0 {
		params.NClusters = DefaultNClusters
	}
	if params.NProbe <= 0 {
		params.NProbe = DefaultNProbe
	}
	return &IVF{
		nClusters:   params.NClusters,
		nProbe:      params.NProbe,
		vectors:     make(map[uuid.UUID][]float64),
		order:       newInsertionOrder(),
		assignments: make(map[int][]uuid.UUID),
	}
}

// Add normalizes and inserts (or replaces) the vector for id, then
// rebuilds the clusters.
func (ix *IVF) Add(id uuid.UUID, vec []float64) error {
	if ix.dimension == 0 {
		ix.dimension = len(vec)
	} else if err := vectormath.CheckDim(vec, ix.dimension); err != nil {
		return err
	}

	normalized, err := vectormath.Normalize(vec)
	if err != nil {
		return err
	}

	ix.vectors[id] = normalized
	ix.order.add(id)
	ix.rebuildClusters()
	return nil
}

// Delete removes id if present and rebuilds the clusters.
func (ix *IVF) Delete(id uuid.UUID) {
	if _, ok := ix.vectors[id]; !ok {
		return
	}
	delete(ix.vectors, id)
	ix.order.remove(id)
	ix.rebuildClusters()
}

// rebuildClusters reseeds centers from insertion order and reassigns
// every vector to its closest center.
func (ix *IVF) rebuildClusters() {
	ix.centers = nil
	ix.assignments = make(map[int][]uuid.UUID)
	if len(ix.vectors) == 0 {
		return
	}

	seedCount := len(ix.order.ids)
	if seedCount > ix.nClusters {
		seedCount = ix.nClusters
	}
	ix.centers = make([][]float64, 0, seedCount)
	for _, id := range ix.order.ids[:seedCount] {
		ix.centers = append(ix.centers, ix.vectors[id])
	}

	for _, id := range ix.order.ids {
		cluster := ix.closestClusters(ix.vectors[id], 1)[0]
		ix.assignments[cluster] = append(ix.assignments[cluster], id)
	}
}

// closestClusters ranks cluster indexes by similarity to vec, ties to the
// lowest index. vec must be normalized.
func (ix *IVF) closestClusters(vec []float64, n int) []int {
	indexes := make([]int, len(ix.centers))
	sims := make([]float64, len(ix.centers))
	for i, center := range ix.centers {
		indexes[i] = i
		sims[i] = vectormath.Dot(vec, center)
	}
	sort.SliceStable(indexes, func(a, b int) bool {
		return sims[indexes[a]] > sims[indexes[b]]
	})
	if n < len(indexes) {
		indexes = indexes[:n]
	}
	return indexes
}

// Search probes the nProbe closest cells and returns the global top k.
func (ix *IVF) Search(query []float64, k int) ([]uuid.UUID, error) {
	if len(ix.vectors) == 0 || k <= 0 {
		return []uuid.UUID{}, nil
	}
	if err := vectormath.CheckDim(query, ix.dimension); err != nil {
		return nil, err
	}
	normalized, err := vectormath.Normalize(query)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	for _, cluster := range ix.closestClusters(normalized, ix.nProbe) {
		for _, id := range ix.assignments[cluster] {
			candidates = append(candidates, candidate{
				id:  id,
				sim: vectormath.Dot(normalized, ix.vectors[id]),
				ord: ix.order.rankOf(id),
			})
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return better(candidates[a], candidates[b])
	})

	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]uuid.UUID, k)
	for i := 0; i < k; i++ {
		out[i] = candidates[i].id
	}
	return out, nil
}

// Stats reports per-cluster member counts alongside the shared fields.
func (ix *IVF) Stats() Stats {
	sizes := make(map[int]int, len(ix.assignments))
	for cluster, members := range ix.assignments {
		sizes[cluster] = len(members)
	}
	return Stats{
		Type:         TypeIVF,
		Count:        len(ix.vectors),
		Dimension:    ix.dimension,
		ClusterSizes: sizes,
	}
}

// Type returns the variant tag.
func (ix *IVF) Type() Type { return TypeIVF }

// Dimension returns the fixed dimension, 0 before the first insert.
func (ix *IVF) Dimension() int { return ix.dimension }

// Len returns the number of stored vectors.
func (ix *IVF) Len() int { return len(ix.vectors) }

// ivfBlob is the serialized layout of an IVF index.
type ivfBlob struct {
	Type        Type                 `json:"type"`
	Dimension   int                  `json:"dimension"`
	NClusters   int                  `json:"n_clusters"`
	NProbe      int                  `json:"n_probe"`
	Vectors     map[string][]float64 `json:"vectors"`
	Order       []string             `json:"order"`
	Centers     [][]float64          `json:"cluster_centers"`
	Assignments map[string][]string  `json:"cluster_assignments"`
}

// MarshalBlob serializes the index.
func (ix *IVF) MarshalBlob() ([]byte, error) {
	assignments := make(map[string][]string, len(ix.assignments))
	for cluster, members := range ix.assignments {
		assignments[strconv.Itoa(cluster)] = encodeIDs(members)
	}
	blob := ivfBlob{
		Type:        TypeIVF,
		Dimension:   ix.dimension,
		NClusters:   ix.nClusters,
		NProbe:      ix.nProbe,
		Vectors:     encodeVectors(ix.vectors),
		Order:       encodeIDs(ix.order.ids),
		Centers:     ix.centers,
		Assignments: assignments,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "serialize ivf index", err)
	}
	return data, nil
}

func unmarshalIVF(data []byte) (*IVF, error) {
	var blob ivfBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "deserialize ivf index", err)
	}

	vectors, err := decodeVectors(blob.Vectors)
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(blob.Order)
	if err != nil {
		return nil, err
	}

	ix := NewIVF(Params{NClusters: blob.NClusters, NProbe: blob.NProbe})
	ix.dimension = blob.Dimension
	ix.vectors = vectors
	for _, id := range ids {
		ix.order.add(id)
	}
	ix.centers = blob.Centers
	for key, members := range blob.Assignments {
		cluster, err := strconv.Atoi(key)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "invalid cluster index in blob: "+key, err)
		}
		memberIDs, err := decodeIDs(members)
		if err != nil {
			return nil, err
		}
		ix.assignments[cluster] = memberIDs
	}
	return ix, nil
}
