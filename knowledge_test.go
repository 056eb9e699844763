package knowledge

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowledge/ai/mock"
	"github.com/poiesic/knowledge/chunk"
	"github.com/poiesic/knowledge/config"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/ingestion"
	"github.com/poiesic/knowledge/storage"
)

const testDimension = 768

// wordTokenizer treats every whitespace-separated word as one token.
type wordTokenizer struct {
	mu    sync.Mutex
	ids   map[string]int
	words []string
}

func (w *wordTokenizer) Encode(text string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	fields := strings.Fields(text)
	out := make([]int, len(fields))
	for i, f := range fields {
		id, ok := w.ids[f]
		if !ok {
			id = len(w.words)
			w.ids[f] = id
			w.words = append(w.words, f)
		}
		out[i] = id
	}
	return out
}

func (w *wordTokenizer) Decode(tokens []int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	parts := make([]string, len(tokens))
	for i, id := range tokens {
		parts[i] = w.words[id]
	}
	return strings.Join(parts, " ")
}

func testOptions(t *testing.T, embedder *mock.MockEmbedder) []Option {
	t.Helper()
	splitter, err := chunk.NewSplitter(&wordTokenizer{ids: make(map[string]int)},
		chunk.WithTargetTokens(10), chunk.WithOverlap(2))
	require.NoError(t, err)
	if embedder == nil {
		embedder = mock.NewMockEmbedder(mock.WithDimension(testDimension))
	}
	return []Option{
		WithProvider(mock.NewMockProviderWithServices(embedder, nil)),
		WithSplitter(splitter),
		WithRetry(1, time.Millisecond),
		WithAgentID(core.AgentID("eliza")),
	}
}

func openTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	s, err := Open("", append(append(testOptions(t, nil), WithInMemory()), opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func textOptions(filename, content string) *ingestion.AddKnowledgeOptions {
	return &ingestion.AddKnowledgeOptions{
		Content:     content,
		ContentType: "text/plain",
		Filename:    filename,
	}
}

func TestOpen(t *testing.T) {
	t.Run("create new store", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test_db")
		s, err := Open(path, testOptions(t, nil)...)
		require.NoError(t, err)
		require.NotNil(t, s)
		defer s.Close()

		assert.NotNil(t, s.Documents())
		assert.NotNil(t, s.Fragments())
		assert.NotNil(t, s.backend)
		assert.NotNil(t, s.logger)
		assert.Equal(t, core.AgentID("eliza"), s.AgentID())
		assert.Equal(t, testDimension, s.dimension)
	})

	t.Run("error with invalid path", func(t *testing.T) {
		tmpFile := filepath.Join(t.TempDir(), "not_a_dir")
		require.NoError(t, os.WriteFile(tmpFile, []byte("test"), 0644))

		s, err := Open(tmpFile, testOptions(t, nil)...)
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	t.Run("nil agent rejected", func(t *testing.T) {
		s, err := Open("", append(testOptions(t, nil), WithInMemory(), WithAgentID(core.NilID))...)
		assert.ErrorIs(t, err, core.ErrInvalidID)
		assert.Nil(t, s)
	})

	t.Run("invalid gate capacity", func(t *testing.T) {
		s, err := Open("", append(testOptions(t, nil), WithInMemory(), WithGateCapacity(0))...)
		assert.Error(t, err)
		assert.Nil(t, s)
	})

	t.Run("gate capacity applied", func(t *testing.T) {
		s := openTestService(t, WithGateCapacity(3))
		assert.Equal(t, 3, s.Gate().Capacity())
	})
}

func TestService_Close(t *testing.T) {
	provider := mock.NewMockProviderWithServices(mock.NewMockEmbedder(mock.WithDimension(testDimension)), nil)
	opts := append(testOptions(t, nil), WithProvider(provider))
	s, err := Open(t.TempDir(), opts...)
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.True(t, provider.Closed())
	assert.True(t, s.backend.IsClosed())
}

func TestService_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	s, err := Open(path, testOptions(t, nil)...)
	require.NoError(t, err)
	res, err := s.AddKnowledge(ctx, textOptions("keeper.txt", "The lighthouse keeper logs every ship."))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path, testOptions(t, nil)...)
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "The lighthouse keeper logs every ship.", doc.Content)

	again, err := s.AddKnowledge(ctx, textOptions("keeper.txt", "The lighthouse keeper logs every ship."))
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, res.FragmentCount, again.FragmentCount)
}

func TestService_AddAndQuery(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	keeper, err := s.AddKnowledge(ctx, textOptions("keeper.txt", "The lighthouse keeper logs every ship."))
	require.NoError(t, err)
	assert.Equal(t, 1, keeper.FragmentCount)

	_, err = s.AddKnowledge(ctx, textOptions("bread.txt", "Bread rises when yeast ferments sugar."))
	require.NoError(t, err)

	doc, err := s.GetDocument(ctx, keeper.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, s.AgentID(), doc.AgentID)
	assert.Equal(t, s.AgentID(), doc.Scope.RoomID)

	results, err := s.Query(ctx, "The lighthouse keeper logs every ship.", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, keeper.DocumentID, results[0].Fragment.DocumentID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
	assert.Contains(t, results[0].MatchedTerms, "lighthouse")
}

func TestService_ExplicitAgentKept(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	other := core.AgentID("someone-else")
	opts := textOptions("other.txt", "Owls hunt at night.")
	opts.AgentID = other
	res, err := s.AddKnowledge(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, other, opts.AgentID)

	doc, err := s.GetDocument(ctx, res.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, other, doc.AgentID)

	docs, err := s.ListDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, docs, "documents of other agents are not listed")
}

func TestService_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	room := core.AgentID("room-a")
	scoped := textOptions("scoped.txt", "Scoped knowledge lives in room a.")
	scoped.Scope = core.Scope{RoomID: room}
	scopedRes, err := s.AddKnowledge(ctx, scoped)
	require.NoError(t, err)

	plain, err := s.AddKnowledge(ctx, textOptions("plain.txt", "Plain knowledge lives everywhere. "+strings.Repeat("more words here ", 5)))
	require.NoError(t, err)
	require.Greater(t, plain.FragmentCount, 1)

	all, err := s.ListDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	inRoom, err := s.ListDocuments(ctx, &core.Scope{RoomID: room})
	require.NoError(t, err)
	require.Len(t, inRoom, 1)
	assert.Equal(t, scopedRes.DocumentID, inRoom[0].ID)

	frags, err := s.FragmentsForDocument(ctx, plain.DocumentID)
	require.NoError(t, err)
	require.Len(t, frags, plain.FragmentCount)

	removed, err := s.DeleteKnowledge(ctx, plain.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, plain.FragmentCount, removed)

	_, err = s.GetDocument(ctx, plain.DocumentID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	frags, err = s.FragmentsForDocument(ctx, plain.DocumentID)
	require.NoError(t, err)
	assert.Empty(t, frags)

	_, err = s.DeleteKnowledge(ctx, plain.DocumentID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestService_UpdateKnowledge(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	opts := textOptions("notes.txt", "First draft of the notes.")
	opts.DocumentID = core.DocumentID(s.AgentID(), "notes")
	_, err := s.AddKnowledge(ctx, opts)
	require.NoError(t, err)

	revised := *opts
	revised.Content = "Second draft of the notes."
	res, err := s.UpdateKnowledge(ctx, &revised)
	require.NoError(t, err)
	assert.False(t, res.Existing)

	doc, err := s.GetDocument(ctx, opts.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Second draft of the notes.", doc.Content)
}

func TestService_ProcessCharacterKnowledge(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	items := []string{
		"Eliza was written in 1966.",
		"Path: lore/origin.md\nEliza ran on an IBM 7094.",
		"Eliza was written in 1966.",
		"Test1234",
	}
	res := s.ProcessCharacterKnowledge(ctx, items)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 0, res.Failed)

	docs, err := s.ListDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 3)

	doc, err := s.GetDocument(ctx, core.DocumentID(s.AgentID(), "Test1234"))
	require.NoError(t, err)
	assert.Equal(t, "Test1234", doc.Content)
}

func TestService_Reembed(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	_, err := s.AddKnowledge(ctx, textOptions("keeper.txt", "The lighthouse keeper logs every ship."))
	require.NoError(t, err)
	_, err = s.AddKnowledge(ctx, textOptions("bread.txt", "Bread rises when yeast ferments sugar."))
	require.NoError(t, err)

	var progress bytes.Buffer
	n, err := s.Reembed(ctx, nil, &progress)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, progress.String(), "Reembedding complete")

	results, err := s.Query(ctx, "Bread rises when yeast ferments sugar.", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-4)
}

// peakEmbedder records the highest number of concurrent embedding calls.
type peakEmbedder struct {
	*mock.MockEmbedder
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newPeakEmbedder(delay time.Duration) *peakEmbedder {
	e := &peakEmbedder{MockEmbedder: mock.NewMockEmbedder(mock.WithDimension(testDimension))}
	e.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		n := e.inFlight.Add(1)
		defer e.inFlight.Add(-1)
		for {
			old := e.peak.Load()
			if n <= old || e.peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(delay)
		return mock.Vector(text, testDimension), nil
	}
	return e
}

func TestService_GateSharedAcrossOperations(t *testing.T) {
	ctx := context.Background()
	embedder := newPeakEmbedder(20 * time.Millisecond)
	s := openTestService(t,
		WithProvider(mock.NewMockProviderWithServices(embedder.MockEmbedder, nil)),
		WithGateCapacity(1),
	)

	_, err := s.AddKnowledge(ctx, textOptions("keeper.txt", "The lighthouse keeper logs every ship."))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 11)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Query(ctx, "lighthouse keeper", nil)
			errs <- err
		}()
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddKnowledge(ctx, textOptions(fmt.Sprintf("notes-%d.txt", i),
				fmt.Sprintf("Harbour notes, volume %d, list the tides.", i)))
			errs <- err
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Reembed(ctx, nil, nil)
		errs <- err
	}()
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, int32(1), embedder.peak.Load())
	assert.Zero(t, s.Gate().InFlight())
}

func TestService_LoadDirectory(t *testing.T) {
	ctx := context.Background()
	s := openTestService(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("Alpha notes for the loader."), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("Beta notes for the loader."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.txt"), []byte("Hidden notes."), 0644))

	res, err := s.LoadDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 0, res.Failed)

	docs, err := s.ListDocuments(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestService_Watch(t *testing.T) {
	s := openTestService(t)
	dir := t.TempDir()

	w, err := s.Watch(dir)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
}

func TestOptionsFromConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.InMemory = true
		opts, err := OptionsFromConfig(cfg)
		require.NoError(t, err)

		o := defaultOptions()
		for _, opt := range opts {
			opt(o)
		}
		assert.True(t, o.inMemory)
		assert.Equal(t, core.AgentID("default"), o.agentID)
		assert.Equal(t, cfg.Ingestion.TargetTokens, o.targetTokens)
		assert.Equal(t, cfg.Ingestion.OverlapTokens, o.overlapTokens)
		assert.Equal(t, cfg.Ingestion.GateCapacity, o.gateCapacity)
		assert.Equal(t, cfg.Search.Limit, o.searchLimit)
		assert.Equal(t, cfg.Search.Threshold, o.searchThreshold)
		assert.Equal(t, cfg.Embedding.Dimension, o.aiConfig.EmbeddingDimension)
		assert.Equal(t, 500*time.Millisecond, o.retryDelay)
	})

	t.Run("opens with injected provider", func(t *testing.T) {
		cfg := config.Default()
		cfg.Storage.InMemory = true
		cfg.Agent.Name = "eliza"
		cfg.Ingestion.GateCapacity = 4
		opts, err := OptionsFromConfig(cfg)
		require.NoError(t, err)

		s, err := Open("", append(opts, testOptions(t, nil)...)...)
		require.NoError(t, err)
		defer s.Close()
		assert.Equal(t, 4, s.Gate().Capacity())
		assert.Equal(t, core.AgentID("eliza"), s.AgentID())
	})

	t.Run("invalid config", func(t *testing.T) {
		cfg := config.Default()
		cfg.Ingestion.OverlapTokens = cfg.Ingestion.TargetTokens
		_, err := OptionsFromConfig(cfg)
		assert.ErrorIs(t, err, config.ErrInvalidConfig)
		assert.ErrorIs(t, err, chunk.ErrInvalidOverlap)
	})
}

func TestService_FileOptions(t *testing.T) {
	s := openTestService(t)
	path := filepath.Join(t.TempDir(), "guide.md")
	require.NoError(t, os.WriteFile(path, []byte("Guide text for the store."), 0644))

	opts, err := s.FileOptions(path)
	require.NoError(t, err)
	assert.Equal(t, core.NilID, opts.DocumentID)
	assert.Equal(t, ingestion.DefaultSource, opts.Source)
	assert.Equal(t, "guide.md", opts.Filename)
	assert.Equal(t, "Guide text for the store.", opts.Content)
	assert.True(t, strings.HasPrefix(opts.ContentType, "text/"))

	_, err = s.FileOptions(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
