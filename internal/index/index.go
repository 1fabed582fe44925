// Package index implements the per-library vector indexes: an exhaustive
// flat index, an inverted-file (IVF) index, and a hierarchical navigable
// small world (HNSW) graph. All variants rank by cosine similarity, share
// one serialization envelope, and are dispatched by a type tag.
//
// Indexes are not internally synchronized. The scheduler serializes all
// mutations per library, so an index instance is only ever touched by one
// task at a time.
package index

import (
	"encoding/json"

	"github.com/google/uuid"

	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
)

// Type discriminates the index variants inside serialized blobs.
type Type string

const (
	TypeFlat Type = "flat"
	TypeIVF  Type = "ivf"
	TypeHNSW Type = "hnsw"
)

// ParseType validates an index type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeFlat, TypeIVF, TypeHNSW:
		return Type(s), nil
	default:
		return "", vecerr.UnknownIndexType(s)
	}
}

// Params carries variant tuning knobs. Zero values take defaults.
type Params struct {
	// NClusters is the target number of IVF coarse cells.
	NClusters int
	// NProbe is the number of IVF cells visited at query time.
	NProbe int
	// M is the target HNSW neighbors per node per layer.
	M int
	// EfConstruction is the HNSW beam width during insertion.
	EfConstruction int
	// Seed seeds the HNSW layer assignment. Fixed seeds give
	// reproducible graphs; zero selects a non-deterministic seed.
	Seed int64
}

// Default parameter values.
const (
	DefaultNClusters      = 100
	DefaultNProbe         = 10
	DefaultM              = 16
	DefaultEfConstruction = 10
	NumLayers             = 10
)

// Stats summarizes an index for introspection endpoints.
type Stats struct {
	Type      Type `json:"type"`
	Count     int  `json:"count"`
	Dimension int  `json:"dimension"`

	// ClusterSizes maps IVF cluster index to member count.
	ClusterSizes map[int]int `json:"cluster_sizes,omitempty"`

	// LayerSizes gives the node count of each HNSW layer, bottom first.
	LayerSizes []int `json:"layer_sizes,omitempty"`
}

// VectorIndex is the capability set shared by all variants.
type VectorIndex interface {
	// Add inserts or replaces the vector associated with id.
	// Fails with a DimensionMismatch error if the vector length
	// disagrees with the index's fixed dimension, or ZeroVector if the
	// variant normalizes on insert and the vector has zero norm.
	Add(id uuid.UUID, vec []float64) error

	// Delete removes id if present. Absent ids are a no-op.
	Delete(id uuid.UUID)

	// Search returns up to k ids ordered by descending cosine
	// similarity to query. An empty index returns an empty slice.
	// Ties are broken by insertion order.
	Search(query []float64, k int) ([]uuid.UUID, error)

	// Stats returns a summary of the index state.
	Stats() Stats

	// Type returns the variant tag.
	Type() Type

	// Dimension returns the fixed vector dimension, or 0 before the
	// first insert.
	Dimension() int

	// Len returns the number of stored vectors.
	Len() int

	// MarshalBlob serializes the index to its self-describing blob.
	MarshalBlob() ([]byte, error)
}

// New constructs an empty index of the given type.
func New(t Type, params Params) (VectorIndex, error) {
	switch t {
	case TypeFlat:
		return NewFlat(), nil
	case TypeIVF:
		return NewIVF(params), nil
	case TypeHNSW:
		return NewHNSW(params), nil
	default:
		return nil, vecerr.UnknownIndexType(string(t))
	}
}

// blobHeader is the envelope shared by all blob layouts; only the tag is
// inspected before dispatching to the variant decoder.
type blobHeader struct {
	Type Type `json:"type"`
}

// UnmarshalBlob reconstructs an index from a serialized blob, dispatching
// on the embedded type tag. Corrupt payloads and unknown tags fail fast.
func UnmarshalBlob(data []byte) (VectorIndex, error) {
	var header blobHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "undecodable index blob", err)
	}

	switch header.Type {
	case TypeFlat:
		return unmarshalFlat(data)
	case TypeIVF:
		return unmarshalIVF(data)
	case TypeHNSW:
		return unmarshalHNSW(data)
	default:
		return nil, vecerr.UnknownIndexType(string(header.Type))
	}
}

// candidate pairs an id with its similarity and insertion rank for
// tie-stable top-k selection.
type candidate struct {
	id  uuid.UUID
	sim float64
	ord int
}

// better reports whether a ranks ahead of b: higher similarity first,
// earlier insertion on ties.
func better(a, b candidate) bool {
	if a.sim != b.sim {
		return a.sim > b.sim
	}
	return a.ord < b.ord
}

// insertionOrder tracks ids in first-insert order. Re-adding an existing
// id keeps its original rank so replacement does not reshuffle ties or
// IVF seeding.
type insertionOrder struct {
	ids  []uuid.UUID
	rank map[uuid.UUID]int
}

func newInsertionOrder() *insertionOrder {
	return &insertionOrder{rank: make(map[uuid.UUID]int)}
}

func (o *insertionOrder) add(id uuid.UUID) {
	if _, ok := o.rank[id]; ok {
		return
	}
	o.rank[id] = len(o.ids)
	o.ids = append(o.ids, id)
}

func (o *insertionOrder) remove(id uuid.UUID) {
	if _, ok := o.rank[id]; !ok {
		return
	}
	delete(o.rank, id)
	// Rebuild the dense slice; deletes are rare relative to scans.
	ids := make([]uuid.UUID, 0, len(o.ids)-1)
	for _, existing := range o.ids {
		if existing != id {
			ids = append(ids, existing)
		}
	}
	o.ids = ids
	for i, existing := range o.ids {
		o.rank[existing] = i
	}
}

func (o *insertionOrder) rankOf(id uuid.UUID) int {
	r, ok := o.rank[id]
	if !ok {
		return int(^uint(0) >> 1) // unknown ids sort last
	}
	return r
}

func (o *insertionOrder) list() []uuid.UUID {
	out := make([]uuid.UUID, len(o.ids))
	copy(out, o.ids)
	return out
}

// encodeVectors renders an id->vector map with canonical UUID keys.
func encodeVectors(vectors map[uuid.UUID][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(vectors))
	for id, vec := range vectors {
		out[id.String()] = vec
	}
	return out
}

// decodeVectors parses canonical UUID keys back into the id->vector map.
func decodeVectors(raw map[string][]float64) (map[uuid.UUID][]float64, error) {
	out := make(map[uuid.UUID][]float64, len(raw))
	for key, vec := range raw {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "invalid vector id in blob: "+key, err)
		}
		out[id] = vec
	}
	return out, nil
}

// encodeIDs renders a uuid slice as canonical strings.
func encodeIDs(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// decodeIDs parses canonical UUID strings.
func decodeIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(raw))
	for i, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, vecerr.New(vecerr.ErrCodeCorruptBlob, "invalid id in blob: "+s, err)
		}
		out[i] = id
	}
	return out, nil
}
