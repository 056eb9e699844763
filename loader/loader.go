package loader

import (
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/ingestion"
)

// Source is recorded on documents loaded from disk.
const Source = "docs"

// Ingester accepts documents. *ingestion.Pipeline implements it.
type Ingester interface {
	AddKnowledge(ctx context.Context, opts *ingestion.AddKnowledgeOptions) (*ingestion.AddKnowledgeResult, error)
	UpdateKnowledge(ctx context.Context, opts *ingestion.AddKnowledgeOptions) (*ingestion.AddKnowledgeResult, error)
}

// Result counts the outcome of a directory load.
type Result struct {
	// Successful counts files that are stored, including ones loaded before.
	Successful int
	// Failed counts files that could not be read or ingested.
	Failed int
	// Errors holds one error per failed file.
	Errors []error
}

// Loader turns files into knowledge documents.
type Loader struct {
	ingester Ingester
	agentID  core.ID
	maxSize  int64
	logger   *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader) error

// WithMaxFileSize skips files larger than n bytes. Zero means no limit.
func WithMaxFileSize(n int64) Option {
	return func(l *Loader) error {
		if n < 0 {
			return fmt.Errorf("max file size must not be negative: %d", n)
		}
		l.maxSize = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) error {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
		return nil
	}
}

// New creates a loader that ingests files on behalf of agentID.
func New(ingester Ingester, agentID core.ID, opts ...Option) (*Loader, error) {
	if ingester == nil {
		return nil, ErrIngesterRequired
	}
	if agentID == core.NilID {
		return nil, ErrAgentRequired
	}

	l := &Loader{
		ingester: ingester,
		agentID:  agentID,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	l.logger = l.logger.With("component", "loader")
	return l, nil
}

// LoadDirectory ingests every visible regular file under dir. Hidden files
// and directories are skipped. A file that fails is counted and logged; it
// never stops the walk.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	result := &Result{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			l.logger.Warn("cannot read path", "path", path, "err", walkErr)
			result.Failed++
			result.Errors = append(result.Errors, walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		if _, err := l.load(ctx, dir, path, false); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
			return nil
		}
		result.Successful++
		return nil
	})
	if err != nil {
		return result, err
	}

	l.logger.Info("directory loaded", "dir", dir, "successful", result.Successful, "failed", result.Failed)
	return result, nil
}

// LoadFile ingests one file. Paths are identified relative to root.
// With replace set an existing document for the path is re-ingested.
func (l *Loader) LoadFile(ctx context.Context, root, path string, replace bool) (*ingestion.AddKnowledgeResult, error) {
	return l.load(ctx, root, path, replace)
}

func (l *Loader) load(ctx context.Context, root, path string, replace bool) (*ingestion.AddKnowledgeResult, error) {
	opts, err := l.Options(root, path)
	if err != nil {
		l.logger.Warn("skipping file", "path", path, "err", err)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var res *ingestion.AddKnowledgeResult
	if replace {
		res, err = l.ingester.UpdateKnowledge(ctx, opts)
	} else {
		res, err = l.ingester.AddKnowledge(ctx, opts)
	}
	if err != nil {
		l.logger.Error("failed to ingest file", "path", path, "err", err)
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	l.logger.Debug("file ingested",
		"path", opts.Path,
		"documentId", res.DocumentID,
		"fragments", res.FragmentCount,
		"existing", res.Existing)
	return res, nil
}

// Options reads path and builds its ingestion options. Binary files are
// base64-encoded. The document id is derived from the path relative to root.
func (l *Loader) Options(root, path string) (*ingestion.AddKnowledgeOptions, error) {
	if l.maxSize > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if info.Size() > l.maxSize {
			return nil, fmt.Errorf("file size %d exceeds limit %d", info.Size(), l.maxSize)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	contentType, text := detect(data)
	content := string(data)
	if !text {
		content = base64.StdEncoding.EncodeToString(data)
	}

	return &ingestion.AddKnowledgeOptions{
		DocumentID:  DocumentID(l.agentID, rel),
		AgentID:     l.agentID,
		Content:     content,
		ContentType: contentType,
		Filename:    filepath.Base(path),
		Source:      Source,
		Path:        rel,
	}, nil
}

// DocumentID returns the id of the document loaded from relPath.
func DocumentID(agentID core.ID, relPath string) core.ID {
	return core.DocumentID(agentID, "path:"+relPath)
}

// detect sniffs data and reports its media type and whether it is text.
func detect(data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	contentType, _, _ := strings.Cut(mt.String(), ";")
	for m := mt; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return contentType, true
		}
	}
	return contentType, strings.HasPrefix(contentType, "text/")
}

// isHidden reports whether name is a dot file other than . and ..
func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}
