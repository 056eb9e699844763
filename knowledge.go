// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package knowledge is a retrieval-augmented knowledge store for agents.
// Open wires storage, embedding, ingestion, search and the docs loader
// behind one Service handle.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/ai/openai"
	"github.com/poiesic/knowledge/ai/resilient"
	"github.com/poiesic/knowledge/chunk"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/extract"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/ingestion"
	"github.com/poiesic/knowledge/loader"
	"github.com/poiesic/knowledge/reembed"
	"github.com/poiesic/knowledge/search"
	"github.com/poiesic/knowledge/storage"
	"github.com/poiesic/knowledge/storage/badger"
)

// DefaultAgent names the agent used when none is configured.
const DefaultAgent = "default"

// Service owns an open knowledge store and the components that read and
// write it.
type Service struct {
	backend   *badger.Backend
	documents storage.DocumentRepository
	fragments storage.FragmentRepository
	sequence  *badger.Sequence
	provider  ai.Provider
	embedder  ai.Embedder
	pipeline  *ingestion.Pipeline
	searcher  *search.Searcher
	loader    *loader.Loader
	agentID   core.ID
	dimension int
	logger    *slog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	aiConfig         *ai.Config
	provider         ai.Provider
	agentID          core.ID
	inMemory         bool
	splitter         *chunk.Splitter
	targetTokens     int
	overlapTokens    int
	encoding         string
	gateCapacity     int
	poolSize         int
	batchLimit       int
	corruptThreshold float64
	searchLimit      int
	searchThreshold  float32
	maxRetries       int
	retryDelay       time.Duration
	fallback         bool
	maxFileSize      int64
	logger           *slog.Logger
}

// WithAIConfig sets the provider configuration. Default is ai.DefaultConfig().
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an existing provider instead of building one from the
// AI configuration. The Service takes ownership and closes it.
func WithProvider(p ai.Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithAgentID sets the agent that owns ingested knowledge.
func WithAgentID(id core.ID) Option {
	return func(o *options) {
		o.agentID = id
	}
}

// WithInMemory keeps the store in memory. The path is ignored.
func WithInMemory() Option {
	return func(o *options) {
		o.inMemory = true
	}
}

// WithSplitter replaces the tiktoken splitter.
func WithSplitter(s *chunk.Splitter) Option {
	return func(o *options) {
		o.splitter = s
	}
}

// WithChunking sets the chunk size and overlap in tokens.
func WithChunking(target, overlap int) Option {
	return func(o *options) {
		o.targetTokens = target
		o.overlapTokens = overlap
	}
}

// WithEncoding selects the tiktoken encoding used for chunking.
func WithEncoding(encoding string) Option {
	return func(o *options) {
		o.encoding = encoding
	}
}

// WithGateCapacity bounds concurrent embedding calls.
func WithGateCapacity(n int) Option {
	return func(o *options) {
		o.gateCapacity = n
	}
}

// WithPoolSize sets the fragment worker pool size.
func WithPoolSize(n int) Option {
	return func(o *options) {
		o.poolSize = n
	}
}

// WithBatchLimit caps concurrently ingested character knowledge items.
func WithBatchLimit(n int) Option {
	return func(o *options) {
		o.batchLimit = n
	}
}

// WithCorruptThreshold sets the replacement character ratio above which
// decoded content is rejected.
func WithCorruptThreshold(ratio float64) Option {
	return func(o *options) {
		o.corruptThreshold = ratio
	}
}

// WithSearch sets the default result cap and similarity threshold.
func WithSearch(limit int, threshold float32) Option {
	return func(o *options) {
		o.searchLimit = limit
		o.searchThreshold = threshold
	}
}

// WithRetry sets how often a failed embedding call is attempted.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(o *options) {
		o.maxRetries = maxAttempts
		o.retryDelay = baseDelay
	}
}

// WithFallback substitutes hash-derived vectors when the provider keeps
// failing.
func WithFallback(enabled bool) Option {
	return func(o *options) {
		o.fallback = enabled
	}
}

// WithMaxFileSize skips loaded files larger than n bytes.
func WithMaxFileSize(n int64) Option {
	return func(o *options) {
		o.maxFileSize = n
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func defaultOptions() *options {
	return &options{
		aiConfig:         ai.DefaultConfig(),
		agentID:          core.AgentID(DefaultAgent),
		targetTokens:     chunk.DefaultTargetTokens,
		overlapTokens:    chunk.DefaultOverlapTokens,
		encoding:         chunk.DefaultEncoding,
		gateCapacity:     gate.DefaultCapacity,
		corruptThreshold: extract.DefaultCorruptThreshold,
		searchLimit:      search.DefaultLimit,
		searchThreshold:  search.DefaultThreshold,
		maxRetries:       3,
		retryDelay:       500 * time.Millisecond,
		logger:           slog.Default(),
	}
}

// Open opens or creates the knowledge store at path and builds every
// component on top of it. Callers must Close the Service.
func Open(path string, opts ...Option) (*Service, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.agentID == core.NilID {
		return nil, fmt.Errorf("%w: agent id is required", core.ErrInvalidID)
	}
	if o.aiConfig == nil {
		o.aiConfig = ai.DefaultConfig()
	}

	backend, err := badger.OpenBackend(path, o.inMemory)
	if err != nil {
		return nil, err
	}

	s := &Service{
		backend:   backend,
		documents: badger.NewDocumentRepository(backend),
		fragments: badger.NewFragmentRepository(backend),
		agentID:   o.agentID,
		dimension: o.aiConfig.EmbeddingDimension,
		logger:    o.logger.With("component", "knowledge"),
	}

	if err := s.build(o); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("knowledge store opened", "path", path, "inMemory", o.inMemory, "agentId", s.agentID, "dimension", s.dimension)
	return s, nil
}

func (s *Service) build(o *options) error {
	seq, err := badger.NewGenerationSequence(s.backend)
	if err != nil {
		return err
	}
	s.sequence = seq

	s.provider = o.provider
	if s.provider == nil {
		if s.provider, err = openai.NewProvider(o.aiConfig); err != nil {
			return err
		}
	}

	resilientOpts := []resilient.Option{
		resilient.WithRetry(o.maxRetries, o.retryDelay),
		resilient.WithRateLimit(o.aiConfig.RequestsPerMinute, o.aiConfig.TokensPerMinute),
		resilient.WithLogger(o.logger),
	}
	if o.fallback {
		resilientOpts = append(resilientOpts, resilient.WithFallback(s.dimension))
	}
	if s.embedder, err = resilient.Wrap(s.provider.Embedder(), resilientOpts...); err != nil {
		return err
	}

	g, err := gate.New(o.gateCapacity)
	if err != nil {
		return err
	}

	splitter := o.splitter
	if splitter == nil {
		tokenizer, err := chunk.NewTiktoken(o.encoding)
		if err != nil {
			return err
		}
		splitter, err = chunk.NewSplitter(tokenizer,
			chunk.WithTargetTokens(o.targetTokens),
			chunk.WithOverlap(o.overlapTokens),
		)
		if err != nil {
			return err
		}
	}

	classifier, err := extract.NewClassifier(
		extract.WithCorruptThreshold(o.corruptThreshold),
		extract.WithLogger(o.logger),
	)
	if err != nil {
		return err
	}

	pipelineOpts := []ingestion.Option{
		ingestion.WithGate(g),
		ingestion.WithSplitter(splitter),
		ingestion.WithClassifier(classifier),
		ingestion.WithDimension(s.dimension),
		ingestion.WithBatchLimit(o.batchLimit),
		ingestion.WithLogger(o.logger),
	}
	if c := s.provider.Contextualizer(); c != nil {
		pipelineOpts = append(pipelineOpts, ingestion.WithContextualizer(c))
	}
	if o.poolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(o.poolSize))
	}
	if s.pipeline, err = ingestion.NewPipeline(s.documents, s.fragments, s.sequence, s.embedder, pipelineOpts...); err != nil {
		return err
	}

	s.searcher, err = search.NewSearcher(s.fragments, s.embedder,
		search.WithLimit(o.searchLimit),
		search.WithThreshold(o.searchThreshold),
		search.WithAgentID(s.agentID),
		search.WithGate(s.pipeline.Gate()),
		search.WithLogger(o.logger),
	)
	if err != nil {
		return err
	}

	s.loader, err = loader.New(s, s.agentID,
		loader.WithMaxFileSize(o.maxFileSize),
		loader.WithLogger(o.logger),
	)
	return err
}

// Close releases the worker pool, the provider and the database.
// It is safe to call on a partially opened Service.
func (s *Service) Close() error {
	var errs []error
	if s.pipeline != nil {
		s.pipeline.Release()
	}
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if s.sequence != nil {
		if err := s.sequence.Close(); err != nil {
			s.logger.Error("error closing generation sequence", "err", err)
			errs = append(errs, err)
		}
	}
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing backend storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// AgentID returns the agent that owns this store's knowledge.
func (s *Service) AgentID() core.ID {
	return s.agentID
}

// Gate returns the gate bounding concurrent embedding calls.
func (s *Service) Gate() *gate.Gate {
	return s.pipeline.Gate()
}

// Documents returns the document repository.
func (s *Service) Documents() storage.DocumentRepository {
	return s.documents
}

// Fragments returns the fragment repository.
func (s *Service) Fragments() storage.FragmentRepository {
	return s.fragments
}

// AddKnowledge ingests a document. A nil AgentID in opts means the
// Service's agent.
func (s *Service) AddKnowledge(ctx context.Context, opts *ingestion.AddKnowledgeOptions) (*ingestion.AddKnowledgeResult, error) {
	return s.pipeline.AddKnowledge(ctx, s.withAgent(opts))
}

// UpdateKnowledge replaces a document's content and fragments.
func (s *Service) UpdateKnowledge(ctx context.Context, opts *ingestion.AddKnowledgeOptions) (*ingestion.AddKnowledgeResult, error) {
	return s.pipeline.UpdateKnowledge(ctx, s.withAgent(opts))
}

func (s *Service) withAgent(opts *ingestion.AddKnowledgeOptions) *ingestion.AddKnowledgeOptions {
	if opts == nil || opts.AgentID != core.NilID {
		return opts
	}
	o := *opts
	o.AgentID = s.agentID
	return &o
}

// ProcessCharacterKnowledge ingests the agent's built-in knowledge items.
func (s *Service) ProcessCharacterKnowledge(ctx context.Context, items []string) *ingestion.BatchResult {
	return s.pipeline.ProcessCharacterKnowledge(ctx, s.agentID, items)
}

// Query returns the fragments most similar to text within scope.
func (s *Service) Query(ctx context.Context, text string, scope *core.Scope) ([]*core.SearchResult, error) {
	return s.searcher.Query(ctx, text, scope)
}

// QueryWithMonitor is Query with progress callbacks.
func (s *Service) QueryWithMonitor(ctx context.Context, text string, scope *core.Scope, monitor search.SearchMonitor) ([]*core.SearchResult, error) {
	return s.searcher.QueryWithMonitor(ctx, text, scope, monitor)
}

// ListDocuments returns the agent's documents within scope, newest first.
// A nil scope lists every document of the agent.
func (s *Service) ListDocuments(ctx context.Context, scope *core.Scope) ([]*core.Document, error) {
	filter := storage.Filter{AgentID: s.agentID}
	if scope != nil {
		filter.Scope = *scope
	}
	return s.documents.ListDocuments(ctx, filter)
}

// GetDocument returns a stored document.
func (s *Service) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	return s.documents.GetDocument(ctx, id)
}

// FragmentsForDocument returns a document's fragments ordered by position.
func (s *Service) FragmentsForDocument(ctx context.Context, id core.ID) ([]*core.Fragment, error) {
	return s.fragments.FragmentsByDocument(ctx, id)
}

// DeleteKnowledge removes a document and all of its fragments and returns
// the number of fragments removed. Returns storage.ErrNotFound if the
// document does not exist.
func (s *Service) DeleteKnowledge(ctx context.Context, id core.ID) (int, error) {
	if _, err := s.documents.GetDocument(ctx, id); err != nil {
		return 0, err
	}
	removed, err := s.fragments.DeleteByDocument(ctx, id)
	if err != nil {
		return removed, err
	}
	if err := s.documents.DeleteDocument(ctx, id); err != nil {
		return removed, err
	}
	s.logger.Info("deleted knowledge", "documentId", id, "fragments", removed)
	return removed, nil
}

// Reembed recomputes every stored embedding with the current embedder.
// A nil config uses reembed.DefaultConfig with the configured dimension.
// Embedding calls share the service gate unless config names another.
func (s *Service) Reembed(ctx context.Context, config *reembed.Config, progress io.Writer) (int, error) {
	if config == nil {
		config = reembed.DefaultConfig()
		config.Dimension = s.dimension
	}
	c := *config
	if c.Gate == nil {
		c.Gate = s.Gate()
	}
	return reembed.NewReembedder(s.fragments, s.embedder, &c, progress).Run(ctx)
}

// LoadDirectory ingests every visible file under dir.
func (s *Service) LoadDirectory(ctx context.Context, dir string) (*loader.Result, error) {
	return s.loader.LoadDirectory(ctx, dir)
}

// Watch starts watching root for new and modified files. The caller runs
// the returned Watcher and closes it.
func (s *Service) Watch(root string, opts ...loader.WatchOption) (*loader.Watcher, error) {
	return s.loader.Watch(root, opts...)
}

// FileOptions reads a file and returns the options for ingesting it as an
// upload. The id is derived from the content, not the path.
func (s *Service) FileOptions(path string) (*ingestion.AddKnowledgeOptions, error) {
	opts, err := s.loader.Options(filepath.Dir(path), path)
	if err != nil {
		return nil, err
	}
	opts.DocumentID = core.NilID
	opts.Source = ingestion.DefaultSource
	return opts, nil
}
