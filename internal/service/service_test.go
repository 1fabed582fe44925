package service

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ishitachakravarthy/vector-db/internal/embed"
	vecerr "github.com/ishitachakravarthy/vector-db/internal/errors"
	"github.com/ishitachakravarthy/vector-db/internal/index"
	"github.com/ishitachakravarthy/vector-db/internal/scheduler"
	"github.com/ishitachakravarthy/vector-db/internal/store"
)

// fixture wires a real store, scheduler, and static embedder together.
type fixture struct {
	store     *store.SQLiteStore
	sched     *scheduler.Scheduler
	indexes   *IndexService
	libraries *LibraryService
	documents *DocumentService
	chunks    *ChunkService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "vectordb.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	sched := scheduler.New(scheduler.Config{MaxConcurrent: 4})
	t.Cleanup(sched.Close)

	embedder := embed.NewStaticEmbedder()
	logger := slog.Default()

	params := index.Params{NClusters: 4, NProbe: 4, M: 8, EfConstruction: 16, Seed: 1}
	indexes := NewIndexService(st, embedder, params, logger)

	return &fixture{
		store:     st,
		sched:     sched,
		indexes:   indexes,
		libraries: NewLibraryService(st, sched, indexes, logger),
		documents: NewDocumentService(st, sched, indexes, logger),
		chunks:    NewChunkService(st, sched, indexes, embedder, logger),
	}
}

// seedLibrary creates a library with one document.
func (f *fixture) seedLibrary(t *testing.T, indexType string) (*store.Library, *store.Document) {
	t.Helper()
	ctx := context.Background()

	lib, err := f.libraries.CreateLibrary(ctx, "lib", "test library", indexType)
	require.NoError(t, err)
	doc, err := f.documents.CreateDocument(ctx, lib.ID, "doc")
	require.NoError(t, err)
	return lib, doc
}

func TestCreateLibrary_DefaultsToFlat(t *testing.T) {
	f := newFixture(t)

	lib, err := f.libraries.CreateLibrary(context.Background(), "lib", "", "")
	require.NoError(t, err)
	assert.Equal(t, "flat", lib.IndexType)
}

func TestCreateLibrary_RejectsUnknownIndexType(t *testing.T) {
	f := newFixture(t)

	_, err := f.libraries.CreateLibrary(context.Background(), "lib", "", "annoy")
	require.Error(t, err)
	assert.Equal(t, vecerr.KindUnknownIndexType, vecerr.KindOf(err))
}

func TestCreateDocument_ParentNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.documents.CreateDocument(context.Background(), uuid.New(), "doc")
	require.Error(t, err)
	assert.Equal(t, vecerr.KindParentNotFound, vecerr.KindOf(err))
}

func TestCreateChunk_ParentNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.chunks.CreateChunk(context.Background(), ChunkCreate{
		DocumentID: uuid.New(),
		Text:       "orphan",
	})
	require.Error(t, err)
	assert.Equal(t, vecerr.KindParentNotFound, vecerr.KindOf(err))
}

func TestCreateChunkAndSearch(t *testing.T) {
	for _, indexType := range []string{"flat", "ivf", "hnsw"} {
		t.Run(indexType, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			lib, doc := f.seedLibrary(t, indexType)

			texts := []string{
				"the mitochondria is the powerhouse of the cell",
				"stock markets rallied on tuesday",
				"golang channels synchronize goroutines",
			}
			created := make([]*store.Chunk, len(texts))
			for i, text := range texts {
				chunk, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: text, Position: i})
				require.NoError(t, err)
				created[i] = chunk
			}

			// Searching with a stored text ranks its chunk first: the
			// static embedder maps equal text to equal vectors.
			results, err := f.libraries.Search(ctx, lib.ID, texts[2], 2)
			require.NoError(t, err)
			require.NotEmpty(t, results)
			assert.Equal(t, created[2].ID, results[0].ID)
		})
	}
}

func TestSearch_EmptyLibrary(t *testing.T) {
	f := newFixture(t)
	lib, _ := f.seedLibrary(t, "flat")

	results, err := f.libraries.Search(context.Background(), lib.ID, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_ValidatesInput(t *testing.T) {
	f := newFixture(t)
	lib, _ := f.seedLibrary(t, "flat")
	ctx := context.Background()

	_, err := f.libraries.Search(ctx, lib.ID, "", 5)
	assert.Equal(t, vecerr.KindValidation, vecerr.KindOf(err))

	_, err = f.libraries.Search(ctx, lib.ID, "q", 0)
	assert.Equal(t, vecerr.KindValidation, vecerr.KindOf(err))
}

func TestSearch_LibraryNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.libraries.Search(context.Background(), uuid.New(), "q", 3)
	require.Error(t, err)
	assert.Equal(t, vecerr.KindNotFound, vecerr.KindOf(err))
}

func TestUpdateChunk_ReplacesVector(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "flat")

	chunk, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "original topic"})
	require.NoError(t, err)
	_, err = f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "unrelated filler text"})
	require.NoError(t, err)

	newText := "entirely new subject matter"
	updated, err := f.chunks.UpdateChunk(ctx, chunk.ID, ChunkUpdate{Text: &newText})
	require.NoError(t, err)
	assert.Equal(t, newText, updated.Text)

	// The new text finds the chunk; the index holds one vector per id.
	results, err := f.libraries.Search(ctx, lib.ID, newText, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ID, results[0].ID)

	stats, err := f.libraries.IndexStats(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Count)
}

func TestDeleteChunk_RemovesVectorAndRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "flat")

	chunk, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "ephemeral"})
	require.NoError(t, err)

	require.NoError(t, f.chunks.DeleteChunk(ctx, chunk.ID))

	_, err = f.chunks.GetChunk(ctx, chunk.ID)
	assert.Equal(t, vecerr.KindNotFound, vecerr.KindOf(err))

	results, err := f.libraries.Search(ctx, lib.ID, "ephemeral", 1)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestDeleteDocument_CascadesToChunksAndIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "flat")

	chunk, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "hello"})
	require.NoError(t, err)

	require.NoError(t, f.documents.DeleteDocument(ctx, doc.ID))

	// The chunk record is gone and the vector left the index.
	_, err = f.chunks.GetChunk(ctx, chunk.ID)
	assert.Equal(t, vecerr.KindNotFound, vecerr.KindOf(err))

	results, err := f.libraries.Search(ctx, lib.ID, "hello", 1)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = f.documents.GetDocument(ctx, doc.ID)
	assert.Equal(t, vecerr.KindNotFound, vecerr.KindOf(err))
}

func TestDeleteLibrary_CascadesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "ivf")

	chunk, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "doomed"})
	require.NoError(t, err)

	require.NoError(t, f.libraries.DeleteLibrary(ctx, lib.ID))

	for _, check := range []func() vecerr.Kind{
		func() vecerr.Kind { _, err := f.libraries.GetLibrary(ctx, lib.ID); return vecerr.KindOf(err) },
		func() vecerr.Kind { _, err := f.documents.GetDocument(ctx, doc.ID); return vecerr.KindOf(err) },
		func() vecerr.Kind { _, err := f.chunks.GetChunk(ctx, chunk.ID); return vecerr.KindOf(err) },
	} {
		assert.Equal(t, vecerr.KindNotFound, check())
	}
}

func TestUpdateLibrary_IndexTypeChangeRebuilds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "flat")

	texts := []string{"alpha particle physics", "beta testing software", "gamma ray bursts"}
	for _, text := range texts {
		_, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: text})
		require.NoError(t, err)
	}

	newType := "hnsw"
	updated, err := f.libraries.UpdateLibrary(ctx, lib.ID, LibraryUpdate{IndexType: &newType})
	require.NoError(t, err)
	assert.Equal(t, "hnsw", updated.IndexType)

	stats, err := f.libraries.IndexStats(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, index.TypeHNSW, stats.Type)
	assert.Equal(t, 3, stats.Count)

	// Content is still searchable through the rebuilt index.
	results, err := f.libraries.Search(ctx, lib.ID, texts[0], 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, texts[0], results[0].Text)
}

func TestTenConcurrentInserts_SameLibrary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "flat")

	texts := []string{
		"zero one two", "one two three", "two three four", "three four five",
		"four five six", "five six seven", "six seven eight", "seven eight nine",
		"eight nine ten", "nine ten eleven",
	}

	var wg sync.WaitGroup
	for _, text := range texts {
		text := text
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: text})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// After quiescence the index holds exactly ten distinct vectors.
	stats, err := f.libraries.IndexStats(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Count)

	results, err := f.libraries.Search(ctx, lib.ID, texts[0], 10)
	require.NoError(t, err)
	require.Len(t, results, 10)
	seen := make(map[uuid.UUID]bool)
	for _, chunk := range results {
		seen[chunk.ID] = true
	}
	assert.Len(t, seen, 10)
}

// failingEmbedder always errors, for no-partial-state checks.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string, embed.InputType) ([]float64, error) {
	return nil, vecerr.New(vecerr.ErrCodeEmbedderUnavailable, "synthetic outage", nil)
}
func (failingEmbedder) EmbedBatch(context.Context, []string, embed.InputType) ([][]float64, error) {
	return nil, vecerr.New(vecerr.ErrCodeEmbedderUnavailable, "synthetic outage", nil)
}
func (failingEmbedder) ModelName() string { return "failing" }
func (failingEmbedder) Close() error      { return nil }

func TestCreateChunk_EmbedderFailureLeavesNoState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "flat")

	broken := NewChunkService(f.store, f.sched, f.indexes, failingEmbedder{}, slog.Default())
	_, err := broken.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "never lands"})
	require.Error(t, err)
	assert.Equal(t, vecerr.KindEmbedderError, vecerr.KindOf(err))

	// No chunk row, no index entry.
	chunks, err := f.chunks.ListChunks(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	stats, err := f.libraries.IndexStats(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Count)
}

func TestIndexService_DeleteVectorIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, _ := f.seedLibrary(t, "flat")

	// Deleting a vector that never existed succeeds.
	require.NoError(t, f.indexes.DeleteVector(ctx, lib.ID, uuid.New()))
}

func TestIndexService_AddVectorDimensionMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, _ := f.seedLibrary(t, "flat")

	require.NoError(t, f.indexes.AddVector(ctx, lib.ID, uuid.New(), []float64{1, 0, 0}))
	err := f.indexes.AddVector(ctx, lib.ID, uuid.New(), []float64{1, 0})
	require.Error(t, err)
	assert.Equal(t, vecerr.KindDimensionMismatch, vecerr.KindOf(err))
}

func TestIndexService_HotLoadFromBlob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lib, doc := f.seedLibrary(t, "ivf")

	chunk, err := f.chunks.CreateChunk(ctx, ChunkCreate{DocumentID: doc.ID, Text: "persisted across loads"})
	require.NoError(t, err)

	// A second index service over the same store sees the blob written
	// by the first: there is no in-process state to lose.
	second := NewIndexService(f.store, embed.NewStaticEmbedder(), index.Params{NClusters: 4, NProbe: 4}, slog.Default())
	results, err := second.Search(ctx, lib.ID, "persisted across loads", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, chunk.ID, results[0].ID)
}
