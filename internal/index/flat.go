package index

import (
	"container/heap"
	"encoding/json"

	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/vectormath"
)

// Flat is the exhaustive index: every query scans every stored vector.
// Vectors are stored as inserted (no normalization); cosine similarity is
// computed directly. Suitable for libraries up to a few thousand chunks.
type Flat struct {
	dimension int
	vectors   map[uuid.UUID][]float64
	order     *insertionOrder
}

var _ VectorIndex = (*Flat)(nil)

// NewFlat creates an empty flat index. The dimension is fixed by the
// first inserted vector.
func NewFlat() *Flat {
	return &Flat{
		vectors: make(map[uuid.UUID][]float64),
		order:   newInsertionOrder(),
	}
}

// Add inserts or replaces the vector for id.
func (f *Flat) Add(id uuid.UUID, vec []float64) error {
	if f.dimension == 0 {
		f.dimension = len(vec)
	} else if err := vectormath.CheckDim(vec, f.dimension); err != nil {
		return err
	}

	stored := make([]float64, len(vec))
	copy(stored, vec)
	f.vectors[id] = stored
	f.order.add(id)
	return nil
}

// Delete removes id if present.
func (f *Flat) Delete(id uuid.UUID) {
	if _, ok := f.vectors[id]; !ok {
		return
	}
	delete(f.vectors, id)
	f.order.remove(id)
}

// Search scans all vectors and keeps the top k in a bounded min-heap.
func (f *Flat) Search(query []float64, k int) ([]uuid.UUID, error) {
	if len(f.vectors) == 0 || k <= 0 {
		return []uuid.UUID{}, nil
	}
	if err := vectormath.CheckDim(query, f.dimension); err != nil {
		return nil, err
	}

	h := &topKHeap{limit: k}
	heap.Init(h)
	for _, id := range f.order.ids {
		sim, err := vectormath.Cosine(query, f.vectors[id])
		if err != nil {
			return nil, err
		}
		h.offer(candidate{id: id, sim: sim, ord: f.order.rankOf(id)})
	}

	return h.ranked(), nil
}

// Stats returns the variant summary.
func (f *Flat) Stats() Stats {
	return Stats{
		Type:      TypeFlat,
		Count:     len(f.vectors),
		Dimension: f.dimension,
	}
}

// Type returns the variant tag.
func (f *Flat) Type() Type { return TypeFlat }

// Dimension returns the fixed dimension, 0 before the first insert.
func (f *Flat) Dimension() int { return f.dimension }

// Len returns the number of stored vectors.
func (f *Flat) Len() int { return len(f.vectors) }

// flatBlob is the serialized layout of a flat index.
type flatBlob struct {
	Type      Type                 `json:"type"`
	Dimension int                  `json:"dimension"`
	Vectors   map[string][]float64 `json:"vectors"`
	Order     []string             `json:"order"`
}

// MarshalBlob serializes the index.
func (f *Flat) MarshalBlob() ([]byte, error) {
	blob := flatBlob{
		Type:      TypeFlat,
		Dimension: f.dimension,
		Vectors:   encodeVectors(f.vectors),
		Order:     encodeIDs(f.order.ids),
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "serialize flat index", err)
	}
	return data, nil
}

func unmarshalFlat(data []byte) (*Flat, error) {
	var blob flatBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "deserialize flat index", err)
	}

	vectors, err := decodeVectors(blob.Vectors)
	if err != nil {
		return nil, err
	}
	ids, err := decodeIDs(blob.Order)
	if err != nil {
		return nil, err
	}

	f := NewFlat()
	f.dimension = blob.Dimension
	f.vectors = vectors
	for _, id := range ids {
		f.order.add(id)
	}
	return f, nil
}

// topKHeap is a bounded min-heap over candidates: the root is the worst
// kept result, so a better candidate evicts it in O(log k).
type topKHeap struct {
	items []candidate
	limit int
}

func (h *topKHeap) Len() int { return len(h.items) }

// Less orders the heap with the worst candidate at the root.
func (h *topKHeap) Less(i, j int) bool { return better(h.items[j], h.items[i]) }

func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *topKHeap) Push(x any) { h.items = append(h.items, x.(candidate)) }

func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// offer inserts c if the heap is under capacity or c beats the current worst.
func (h *topKHeap) offer(c candidate) {
	if len(h.items) < h.limit {
		heap.Push(h, c)
		return
	}
	if better(c, h.items[0]) {
		h.items[0] = c
		heap.Fix(h, 0)
	}
}

// ranked drains the heap into descending-similarity order.
func (h *topKHeap) ranked() []uuid.UUID {
	out := make([]uuid.UUID, len(h.items))
	for i := len(h.items) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(candidate).id
	}
	return out
}
