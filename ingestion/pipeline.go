package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/singleflight"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/chunk"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/extract"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/storage"
)

// DefaultSource is recorded on documents whose options name no source.
const DefaultSource = "upload"

// Pipeline orchestrates the ingestion of knowledge documents.
// A Pipeline is safe for concurrent use.
type Pipeline struct {
	documents      storage.DocumentRepository
	fragments      storage.FragmentRepository
	sequence       storage.Sequence
	embedder       ai.Embedder
	contextualizer ai.Contextualizer
	classifier     *extract.Classifier
	verbatim       *extract.Classifier
	splitter       *chunk.Splitter
	gate           *gate.Gate
	pool           *ants.Pool
	dimension      int
	batchLimit     int
	inflight       singleflight.Group
	fragmentProc   *fragmentProcessor
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent fragment processing.
// Default is runtime.NumCPU() * 2. The gate, not the pool, bounds embedding
// calls.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			return ErrInvalidPoolSize
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithGate shares a concurrency gate. Every pipeline and service that calls
// the same embedding provider should share one gate.
func WithGate(g *gate.Gate) Option {
	return func(p *Pipeline) error {
		if g != nil {
			p.gate = g
		}
		return nil
	}
}

// WithSplitter sets the chunker.
func WithSplitter(s *chunk.Splitter) Option {
	return func(p *Pipeline) error {
		if s != nil {
			p.splitter = s
		}
		return nil
	}
}

// WithClassifier sets the content classifier.
func WithClassifier(c *extract.Classifier) Option {
	return func(p *Pipeline) error {
		if c != nil {
			p.classifier = c
		}
		return nil
	}
}

// WithContextualizer enables contextual enrichment of fragments.
func WithContextualizer(c ai.Contextualizer) Option {
	return func(p *Pipeline) error {
		p.contextualizer = c
		return nil
	}
}

// WithDimension rejects embeddings whose length differs from dim.
// Zero accepts any length.
func WithDimension(dim int) Option {
	return func(p *Pipeline) error {
		if dim < 0 {
			return fmt.Errorf("%w: negative dimension %d", core.ErrDimensionMismatch, dim)
		}
		p.dimension = dim
		return nil
	}
}

// WithBatchLimit caps how many character knowledge items are ingested at
// once. Zero or negative means no cap.
func WithBatchLimit(n int) Option {
	return func(p *Pipeline) error {
		p.batchLimit = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
// Without WithSplitter the pipeline chunks with the cl100k_base tiktoken
// encoding and default token budgets.
func NewPipeline(
	documents storage.DocumentRepository,
	fragments storage.FragmentRepository,
	sequence storage.Sequence,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if fragments == nil {
		return nil, ErrFragmentRepositoryRequired
	}
	if sequence == nil {
		return nil, ErrSequenceRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := runtime.NumCPU() * 2
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents: documents,
		fragments: fragments,
		sequence:  sequence,
		embedder:  embedder,
		pool:      pool,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if err := p.applyDefaults(); err != nil {
		p.Release()
		return nil, err
	}

	p.fragmentProc = newFragmentProcessor(p)
	p.logger = p.logger.With("component", "ingestion")
	return p, nil
}

func (p *Pipeline) applyDefaults() error {
	if p.gate == nil {
		g, err := gate.New(gate.DefaultCapacity)
		if err != nil {
			return err
		}
		p.gate = g
	}
	if p.classifier == nil {
		c, err := extract.NewClassifier(extract.WithLogger(p.logger))
		if err != nil {
			return err
		}
		p.classifier = c
	}
	verbatim, err := extract.NewClassifier(extract.WithBase64Detection(false), extract.WithLogger(p.logger))
	if err != nil {
		return err
	}
	p.verbatim = verbatim
	if p.splitter == nil {
		tok, err := chunk.NewTiktoken(chunk.DefaultEncoding)
		if err != nil {
			return err
		}
		s, err := chunk.NewSplitter(tok)
		if err != nil {
			return err
		}
		p.splitter = s
	}
	return nil
}

// Gate returns the concurrency gate bounding embedding calls.
func (p *Pipeline) Gate() *gate.Gate {
	return p.gate
}

// AddKnowledgeOptions describes one document to ingest.
type AddKnowledgeOptions struct {
	// DocumentID is the client-supplied id. When nil it is derived from the
	// agent, filename and content.
	DocumentID core.ID
	AgentID    core.ID
	// Scope fields left nil default to AgentID.
	Scope       core.Scope
	Content     string
	ContentType string
	Filename    string
	Source      string
	Path        string
	Title       string
	Extra       map[string]string
	// Verbatim stores Content as plain text. Content type and filename
	// do not select an extractor and base64 detection is skipped.
	Verbatim bool
}

// AddKnowledgeResult reports the outcome of ingesting one document.
type AddKnowledgeResult struct {
	DocumentID core.ID
	// FragmentCount is the number of fragments stored for the document.
	FragmentCount int
	// ChunkCount is the number of chunks the text was split into. It is zero
	// when the document already existed.
	ChunkCount int
	// Existing is set when the document was already ingested and nothing
	// was reprocessed.
	Existing bool
	// FragmentErrors joins the *core.FragmentError of every failed fragment.
	FragmentErrors error
}

// Failed returns the number of chunks that were not stored.
func (r *AddKnowledgeResult) Failed() int {
	if r.Existing {
		return 0
	}
	return r.ChunkCount - r.FragmentCount
}

// ResolveDocumentID returns the id AddKnowledge will use for opts.
func ResolveDocumentID(opts *AddKnowledgeOptions) core.ID {
	if opts.DocumentID != core.NilID {
		return opts.DocumentID
	}
	return core.DocumentID(opts.AgentID, opts.Filename+"\x00"+opts.Content)
}

// AddKnowledge ingests a document. If a document with the same id was
// already ingested it returns the stored fragment count without
// reprocessing. Classification errors abort before anything is stored.
// Fragment failures are reported in the result, not as an error.
func (p *Pipeline) AddKnowledge(ctx context.Context, opts *AddKnowledgeOptions) (*AddKnowledgeResult, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	id := ResolveDocumentID(opts)
	return p.once(id, func() (*AddKnowledgeResult, error) {
		existing, err := p.existing(ctx, id)
		if err != nil || existing != nil {
			return existing, err
		}
		return p.ingest(ctx, id, opts, false)
	})
}

// UpdateKnowledge replaces the content of a document and rebuilds its
// fragments. The document is created if it does not exist. An add or
// update of the same id already in flight finishes first, so the last
// update to start is the content that stays.
func (p *Pipeline) UpdateKnowledge(ctx context.Context, opts *AddKnowledgeOptions) (*AddKnowledgeResult, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	id := ResolveDocumentID(opts)
	return p.exclusive(ctx, id, func() (*AddKnowledgeResult, error) {
		return p.ingest(ctx, id, opts, true)
	})
}

// once collapses concurrent calls for the same document id into one.
func (p *Pipeline) once(id core.ID, fn func() (*AddKnowledgeResult, error)) (*AddKnowledgeResult, error) {
	leader := false
	v, err, _ := p.inflight.Do(id.String(), func() (any, error) {
		leader = true
		return fn()
	})
	if err != nil {
		return nil, err
	}
	result := *v.(*AddKnowledgeResult)
	if !leader {
		// Another call did the work; this one reprocessed nothing
		p.logger.Debug("joined in-flight ingestion", "documentId", id)
		result.Existing = true
		result.ChunkCount = 0
		result.FragmentErrors = nil
	}
	return &result, nil
}

// exclusive runs fn as the only ingestion of id. A call already in flight
// for id is waited out rather than shared. Adds that arrive while fn runs
// join it through once.
func (p *Pipeline) exclusive(ctx context.Context, id core.ID, fn func() (*AddKnowledgeResult, error)) (*AddKnowledgeResult, error) {
	for {
		leader := false
		v, err, _ := p.inflight.Do(id.String(), func() (any, error) {
			leader = true
			return fn()
		})
		if leader {
			if err != nil {
				return nil, err
			}
			result := *v.(*AddKnowledgeResult)
			return &result, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.logger.Debug("waited for in-flight ingestion", "documentId", id)
	}
}

// existing returns a result for an already ingested document, or nil.
func (p *Pipeline) existing(ctx context.Context, id core.ID) (*AddKnowledgeResult, error) {
	doc, err := p.documents.GetDocument(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if doc.Metadata.Kind != core.KindDocument {
		return nil, nil
	}

	count, err := p.fragments.CountByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	p.logger.Info("document already ingested", "documentId", id, "fragments", count)
	return &AddKnowledgeResult{DocumentID: id, FragmentCount: count, Existing: true}, nil
}

func (p *Pipeline) ingest(ctx context.Context, id core.ID, opts *AddKnowledgeOptions, replace bool) (*AddKnowledgeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := p.logger.With("documentId", id)

	var res *extract.Result
	var err error
	if opts.Verbatim {
		res, err = p.verbatim.Classify(ctx, opts.Content, extract.ContentTypeText, "")
	} else {
		res, err = p.classifier.Classify(ctx, opts.Content, opts.ContentType, opts.Filename)
	}
	if err != nil {
		logger.Warn("content rejected", "filename", opts.Filename, "err", err)
		return nil, err
	}

	doc := p.buildDocument(id, opts, res)
	if err := p.storeDocument(ctx, doc, replace); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost a race with another writer of the same id
			existing, exErr := p.existing(ctx, id)
			if exErr != nil {
				return nil, exErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	chunks := p.splitter.Split(res.Text)
	stored, fragErr := p.fragmentProc.process(ctx, doc, res.Text, chunks)

	result := &AddKnowledgeResult{
		DocumentID:     id,
		FragmentCount:  stored,
		ChunkCount:     len(chunks),
		FragmentErrors: fragErr,
	}
	if fragErr != nil {
		logger.Warn("document stored with failed fragments",
			"fragments", stored, "chunks", len(chunks), "err", fragErr)
	}
	logger.Info("document ingested",
		"class", res.Class.String(),
		"fragments", stored,
		"chunks", len(chunks),
		"replaced", replace,
		"elapsed", time.Since(start))
	return result, nil
}

func (p *Pipeline) storeDocument(ctx context.Context, doc *core.Document, replace bool) error {
	if !replace {
		return p.documents.CreateDocument(ctx, doc)
	}

	err := p.documents.UpdateDocument(ctx, doc)
	if errors.Is(err, storage.ErrNotFound) {
		return p.documents.CreateDocument(ctx, doc)
	}
	if err != nil {
		return err
	}
	removed, err := p.fragments.DeleteByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	p.logger.Debug("removed previous fragments", "documentId", doc.ID, "count", removed)
	return nil
}

func (p *Pipeline) buildDocument(id core.ID, opts *AddKnowledgeOptions, res *extract.Result) *core.Document {
	now := time.Now().UTC()
	source := opts.Source
	if source == "" {
		source = DefaultSource
	}
	title := opts.Title
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(opts.Filename)), ".")
	if title == "" && opts.Filename != "" {
		title = strings.TrimSuffix(filepath.Base(opts.Filename), filepath.Ext(opts.Filename))
	}

	var extra map[string]string
	if len(opts.Extra) > 0 {
		extra = make(map[string]string, len(opts.Extra))
		for k, v := range opts.Extra {
			extra[k] = v
		}
	}

	return &core.Document{
		ID:      id,
		AgentID: opts.AgentID,
		Scope:   opts.Scope.WithDefaults(opts.AgentID),
		Content: res.Stored,
		Metadata: core.Metadata{
			Kind:        core.KindDocument,
			Source:      source,
			Filename:    opts.Filename,
			ContentType: opts.ContentType,
			FileSize:    res.Size,
			Path:        opts.Path,
			Title:       title,
			FileExt:     ext,
			FileType:    opts.ContentType,
			DocumentID:  id,
			Timestamp:   now,
			Extra:       extra,
		},
		CreatedAt: now,
	}
}

func validateOptions(opts *AddKnowledgeOptions) error {
	if opts == nil {
		return ErrOptionsRequired
	}
	if opts.AgentID == core.NilID {
		return ErrAgentRequired
	}
	return nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
