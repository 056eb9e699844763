package ingestion

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/poiesic/knowledge/core"
)

// CharacterSource is the source recorded on character knowledge documents.
const CharacterSource = "character"

var pathLine = regexp.MustCompile(`^Path: (.+?)\r?\n`)

// BatchResult summarises a character knowledge batch.
type BatchResult struct {
	// Processed counts items ingested by this call.
	Processed int
	// Skipped counts items that were already ingested.
	Skipped int
	// Failed counts items whose ingestion returned an error.
	Failed int
	// Fragments is the number of fragments stored by this call.
	Fragments int
	// Errors holds one error per failed item.
	Errors []error
}

// ProcessCharacterKnowledge ingests each item as its own document, with an
// id derived from the agent and the item text. Items run concurrently and
// every item runs to completion; failures are collected, never returned.
func (p *Pipeline) ProcessCharacterKnowledge(ctx context.Context, agentID core.ID, items []string) *BatchResult {
	result := &BatchResult{}
	var mu sync.Mutex

	g := new(errgroup.Group)
	if p.batchLimit > 0 {
		g.SetLimit(p.batchLimit)
	}

	for _, item := range items {
		if strings.TrimSpace(item) == "" {
			continue
		}
		g.Go(func() error {
			res, err := p.AddKnowledge(ctx, CharacterOptions(agentID, item))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed++
				result.Errors = append(result.Errors, err)
				p.logger.Error("character knowledge item failed", "agentId", agentID, "err", err)
			case res.Existing:
				result.Skipped++
			default:
				result.Processed++
				result.Fragments += res.FragmentCount
			}
			// Item errors are collected above so the group never cancels siblings
			return nil
		})
	}
	_ = g.Wait()

	p.logger.Info("character knowledge processed",
		"agentId", agentID,
		"items", len(items),
		"processed", result.Processed,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result
}

// CharacterOptions builds the ingestion options for one character knowledge
// item. Items are stored verbatim as text. An item starting with a
// "Path: <path>" line takes its file metadata from that path.
func CharacterOptions(agentID core.ID, item string) *AddKnowledgeOptions {
	opts := &AddKnowledgeOptions{
		DocumentID:  core.DocumentID(agentID, item),
		AgentID:     agentID,
		Content:     item,
		ContentType: "text/plain",
		Source:      CharacterSource,
		Verbatim:    true,
	}

	m := pathLine.FindStringSubmatch(item)
	if m == nil {
		return opts
	}

	path := strings.TrimSpace(m[1])
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	fileType := "text/plain"
	if ext != "" {
		fileType = "text/" + strings.ToLower(strings.TrimPrefix(ext, "."))
	}

	opts.Path = path
	opts.Filename = base
	opts.Title = strings.TrimSuffix(base, ext)
	opts.ContentType = fileType
	return opts
}
