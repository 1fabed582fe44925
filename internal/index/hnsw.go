package index

import (
	"container/heap"
	"encoding/json"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/vectormath"
)

// HNSW is a layered proximity graph. Every node lives in layer 0; a
// geometrically shrinking fraction is promoted to higher layers, giving
// queries a coarse-to-fine descent. Vectors are normalized on insert so
// cosine similarity reduces to a dot product.
//
// With fewer than about 2*M vectors the graph degenerates toward
// exhaustive search, which is acceptable.
type HNSW struct {
	dimension      int
	m              int
	efConstruction int
	seed           int64

	vectors map[uuid.UUID][]float64 // normalized on insert
	order   *insertionOrder

	// layers[l] maps node id to its neighbor set in layer l.
	layers [NumLayers]map[uuid.UUID]map[uuid.UUID]struct{}

	// entryPoints[l] is the entry node of layer l, uuid.Nil when empty.
	entryPoints [NumLayers]uuid.UUID

	rng *rand.Rand
}

var _ VectorIndex = (*HNSW)(nil)

// NewHNSW creates an empty HNSW index.
func NewHNSW(params Params) *HNSW {
	if params.M <= 0 {
		params.M = DefaultM
	}
	if params.EfConstruction <= 0 {
		params.EfConstruction = DefaultEfConstruction
	}
	if params.Seed == 0 {
		params.Seed = time.Now().UnixNano()
	}

	h := &HNSW{
		m:              params.M,
		efConstruction: params.EfConstruction,
		seed:           params.Seed,
		vectors:        make(map[uuid.UUID][]float64),
		order:          newInsertionOrder(),
		rng:            rand.New(rand.NewSource(params.Seed)),
	}
	for l := range h.layers {
		h.layers[l] = make(map[uuid.UUID]map[uuid.UUID]struct{})
	}
	return h
}

// randomLayer draws the top layer for a new node:
// min(floor(-ln(U) * M/4), NumLayers-1).
func (h *HNSW) randomLayer() int {
	u := h.rng.Float64()
	for u == 0 {
		u = h.rng.Float64()
	}
	layer := int(-math.Log(u) * float64(h.m) / 4)
	if layer > NumLayers-1 {
		layer = NumLayers - 1
	}
	return layer
}

// Add normalizes and inserts the vector for id. Re-adding an existing id
// replaces it: the old node is unlinked first so stale edges cannot
// survive the new placement, and the id takes the latest insertion rank.
func (h *HNSW) Add(id uuid.UUID, vec []float64) error {
	if h.dimension == 0 {
		h.dimension = len(vec)
	} else if err := vectormath.CheckDim(vec, h.dimension); err != nil {
		return err
	}

	normalized, err := vectormath.Normalize(vec)
	if err != nil {
		return err
	}

	if _, exists := h.vectors[id]; exists {
		h.Delete(id)
	}

	h.vectors[id] = normalized
	h.order.add(id)

	top := h.randomLayer()
	for l := 0; l <= top; l++ {
		h.layers[l][id] = make(map[uuid.UUID]struct{})

		if entry := h.entryPoints[l]; entry != uuid.Nil {
			neighbors := h.searchLayer(normalized, l, h.efConstruction, entry)
			if len(neighbors) > h.m {
				neighbors = neighbors[:h.m]
			}
			for _, n := range neighbors {
				h.layers[l][id][n.id] = struct{}{}
				h.layers[l][n.id][id] = struct{}{}
			}
		}

		if h.entryPoints[l] == uuid.Nil {
			h.entryPoints[l] = id
		}
	}
	return nil
}

// Delete unlinks id from every layer it appears in. Entry points that
// pointed at id are replaced by the oldest remaining node in that layer,
// or cleared when the layer empties.
func (h *HNSW) Delete(id uuid.UUID) {
	if _, ok := h.vectors[id]; !ok {
		return
	}

	for l := range h.layers {
		neighbors, ok := h.layers[l][id]
		if !ok {
			continue
		}
		for n := range neighbors {
			delete(h.layers[l][n], id)
		}
		delete(h.layers[l], id)

		if h.entryPoints[l] == id {
			h.entryPoints[l] = h.oldestIn(l, id)
		}
	}

	delete(h.vectors, id)
	h.order.remove(id)
}

// oldestIn returns the lowest-insertion-rank node of layer l other than
// excluded, or uuid.Nil when none remain. Deterministic replacement keeps
// rebuilt graphs reproducible.
func (h *HNSW) oldestIn(l int, excluded uuid.UUID) uuid.UUID {
	best := uuid.Nil
	bestRank := int(^uint(0) >> 1)
	for node := range h.layers[l] {
		if node == excluded {
			continue
		}
		if r := h.order.rankOf(node); r < bestRank {
			best, bestRank = node, r
		}
	}
	return best
}

// Search descends from the topmost populated layer, carrying the best
// node of each layer down as the next entry, then runs a wide beam over
// layer 0.
func (h *HNSW) Search(query []float64, k int) ([]uuid.UUID, error) {
	if len(h.vectors) == 0 || k <= 0 {
		return []uuid.UUID{}, nil
	}
	if err := vectormath.CheckDim(query, h.dimension); err != nil {
		return nil, err
	}
	normalized, err := vectormath.Normalize(query)
	if err != nil {
		return nil, err
	}

	top := h.topPopulatedLayer()
	current := h.entryPoints[top]
	for l := top; l > 0; l-- {
		if best := h.searchLayer(normalized, l, h.efConstruction, current); len(best) > 0 {
			current = best[0].id
		}
	}

	efSearch := 2 * k
	if efSearch < 10 {
		efSearch = 10
	}
	results := h.searchLayer(normalized, 0, efSearch, current)
	if k > len(results) {
		k = len(results)
	}
	out := make([]uuid.UUID, k)
	for i := 0; i < k; i++ {
		out[i] = results[i].id
	}
	return out, nil
}

// topPopulatedLayer returns the highest layer with an entry point.
// Layer 0 holds every node, so it is the floor.
func (h *HNSW) topPopulatedLayer() int {
	for l := NumLayers - 1; l > 0; l-- {
		if h.entryPoints[l] != uuid.Nil {
			return l
		}
	}
	return 0
}

// searchLayer runs a bounded beam search in one layer: expand the best
// unvisited candidate, keep the best beamWidth results, stop when the
// frontier cannot improve them. Returns results in descending similarity,
// ties by insertion order.
func (h *HNSW) searchLayer(query []float64, l, beamWidth int, entry uuid.UUID) []candidate {
	if entry == uuid.Nil {
		return nil
	}
	if _, ok := h.layers[l][entry]; !ok {
		return nil
	}

	start := candidate{
		id:  entry,
		sim: vectormath.Dot(query, h.vectors[entry]),
		ord: h.order.rankOf(entry),
	}

	visited := map[uuid.UUID]struct{}{entry: {}}
	frontier := &beamHeap{items: []candidate{start}}
	heap.Init(frontier)
	results := &topKHeap{limit: beamWidth}
	heap.Init(results)
	results.offer(start)

	for frontier.Len() > 0 {
		current := heap.Pop(frontier).(candidate)
		if results.Len() == beamWidth && better(results.items[0], current) {
			break
		}
		for n := range h.layers[l][current.id] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			next := candidate{
				id:  n,
				sim: vectormath.Dot(query, h.vectors[n]),
				ord: h.order.rankOf(n),
			}
			if results.Len() < beamWidth || better(next, results.items[0]) {
				heap.Push(frontier, next)
				results.offer(next)
			}
		}
	}

	ranked := results.ranked()
	out := make([]candidate, len(ranked))
	for i, id := range ranked {
		out[i] = candidate{id: id, sim: vectormath.Dot(query, h.vectors[id]), ord: h.order.rankOf(id)}
	}
	return out
}

// Stats reports per-layer node counts alongside the shared fields.
func (h *HNSW) Stats() Stats {
	sizes := make([]int, NumLayers)
	for l := range h.layers {
		sizes[l] = len(h.layers[l])
	}
	return Stats{
		Type:       TypeHNSW,
		Count:      len(h.vectors),
		Dimension:  h.dimension,
		LayerSizes: sizes,
	}
}

// Type returns the variant tag.
func (h *HNSW) Type() Type { return TypeHNSW }

// Dimension returns the fixed dimension, 0 before the first insert.
func (h *HNSW) Dimension() int { return h.dimension }

// Len returns the number of stored vectors.
func (h *HNSW) Len() int { return len(h.vectors) }

// hnswBlob is the serialized layout of an HNSW index.
type hnswBlob struct {
	Type           Type                  `json:"type"`
	Dimension      int                   `json:"dimension"`
	M              int                   `json:"M"`
	EfConstruction int                   `json:"ef_construction"`
	Seed           int64                 `json:"seed"`
	Vectors        map[string][]float64  `json:"vectors"`
	Order          []string              `json:"order"`
	Layers         []map[string][]string `json:"layers"`
	EntryPoints    []*string             `json:"entry_points"`
}

// MarshalBlob serializes the index.
func (h *HNSW) MarshalBlob() ([]byte, error) {
	layers := make([]map[string][]string, NumLayers)
	for l := range h.layers {
		layer := make(map[string][]string, len(h.layers[l]))
		for node, neighbors := range h.layers[l] {
			ids := make([]uuid.UUID, 0, len(neighbors))
			for n := range neighbors {
				ids = append(ids, n)
			}
			// Stable neighbor order keeps blobs byte-comparable across runs.
			sortByRank(ids, h.order)
			layer[node.String()] = encodeIDs(ids)
		}
		layers[l] = layer
	}

	entryPoints := make([]*string, NumLayers)
	for l, ep := range h.entryPoints {
		if ep != uuid.Nil {
			s := ep.String()
			entryPoints[l] = &s
		}
	}

	blob := hnswBlob{
		Type:           TypeHNSW,
		Dimension:      h.dimension,
		M:              h.m,
		EfConstruction: h.efConstruction,
		Seed:           h.seed,
		Vectors:        encodeVectors(h.vectors),
		Order:          encodeIDs(h.order.ids),
		Layers:         layers,
		EntryPoints:    entryPoints,
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "serialize hnsw index", err)
	}
	return data, nil
}

func unmarshalHNSW(data []byte) (*HNSW, error) {
	var blob hnswBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "deserialize hnsw index", err)
	}
	if len(blob.Layers) > NumLayers || len(blob.EntryPoints) > NumLayers {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "hnsw blob has too many layers", nil)
	}

	vectors, err := decodeVectors(blob.Vectors)
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(blob.Order)
	if err != nil {
		return nil, err
	}

	h := NewHNSW(Params{M: blob.M, EfConstruction: blob.EfConstruction, Seed: blob.Seed})
	h.dimension = blob.Dimension
	h.vectors = vectors
	for _, id := range ids {
		h.order.add(id)
	}

	for l, layer := range blob.Layers {
		for nodeKey, neighborKeys := range layer {
			node, err := uuid.Parse(nodeKey)
			if err != nil {
				return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "invalid node id in blob: "+nodeKey, err)
			}
			neighbors, err := decodeIDs(neighborKeys)
			if err != nil {
				return nil, err
			}
			set := make(map[uuid.UUID]struct{}, len(neighbors))
			for _, n := range neighbors {
				set[n] = struct{}{}
			}
			h.layers[l][node] = set
		}
	}

	for l, ep := range blob.EntryPoints {
		if ep == nil {
			continue
		}
		id, err := uuid.Parse(*ep)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "invalid entry point in blob: "+*ep, err)
		}
		h.entryPoints[l] = id
	}
	return h, nil
}

// sortByRank orders ids by insertion rank, oldest first.
func sortByRank(ids []uuid.UUID, order *insertionOrder) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && order.rankOf(ids[j]) < order.rankOf(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// beamHeap is a max-heap of frontier candidates, best first.
type beamHeap struct {
	items []candidate
}

func (h *beamHeap) Len() int           { return len(h.items) }
func (h *beamHeap) Less(i, j int) bool { return better(h.items[i], h.items[j]) }
func (h *beamHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *beamHeap) Push(x any)         { h.items = append(h.items, x.(candidate)) }

func (h *beamHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}
