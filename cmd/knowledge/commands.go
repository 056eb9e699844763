package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/ingestion"
	"github.com/poiesic/knowledge/loader"
	"github.com/poiesic/knowledge/reembed"
)

var blankLines = regexp.MustCompile(`\r?\n[ \t]*\r?\n`)

func ingestCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one file is required")
	}
	scope, err := scopeFromFlags(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.App.Writer
	failed := 0
	for _, path := range c.Args().Slice() {
		opts, err := svc.FileOptions(path)
		if err == nil {
			if scope != nil {
				opts.Scope = *scope
			}
			var res *ingestion.AddKnowledgeResult
			if c.Bool("update") {
				res, err = svc.UpdateKnowledge(c.Context, opts)
			} else {
				res, err = svc.AddKnowledge(c.Context, opts)
			}
			if err == nil {
				status := "added"
				if res.Existing {
					status = "existing"
				}
				fmt.Fprintf(out, "%s\t%s\t%s\tfragments=%d failed=%d\n",
					res.DocumentID, status, path, res.FragmentCount, res.Failed())
				continue
			}
		}
		failed++
		fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", path, err)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, c.NArg())
	}
	return nil
}

func characterCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one file is required")
	}
	data, err := os.ReadFile(c.Args().First())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	items := blankLines.Split(string(data), -1)
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	res := svc.ProcessCharacterKnowledge(c.Context, items)
	fmt.Fprintf(c.App.Writer, "processed=%d skipped=%d failed=%d fragments=%d\n",
		res.Processed, res.Skipped, res.Failed, res.Fragments)
	for _, err := range res.Errors {
		fmt.Fprintln(c.App.ErrWriter, err)
	}
	if res.Failed > 0 {
		return fmt.Errorf("%d character knowledge items failed", res.Failed)
	}
	return nil
}

func queryCommand(c *cli.Context) error {
	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("query text is required")
	}
	scope, err := scopeFromFlags(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if c.IsSet("limit") {
		cfg.Search.Limit = c.Int("limit")
	}
	if c.IsSet("threshold") {
		cfg.Search.Threshold = float32(c.Float64("threshold"))
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	results, err := svc.Query(c.Context, text, scope)
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Fprintf(out, "%d: [%0.3f] %s (document %s, position %d)\n",
			i, hit.Similarity, hit.Fragment.Content, hit.Fragment.DocumentID, hit.Fragment.Position)
		if len(hit.MatchedTerms) > 0 {
			fmt.Fprintf(out, "   matched: %s\n", strings.Join(hit.MatchedTerms, ", "))
		}
	}
	return nil
}

func listCommand(c *cli.Context) error {
	scope, err := scopeFromFlags(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	docs, err := svc.ListDocuments(c.Context, scope)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		name := doc.Metadata.Title
		if name == "" {
			name = doc.Metadata.Filename
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\t%s\n",
			doc.ID, doc.Metadata.Source, name, doc.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func deleteCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one document id is required")
	}
	id, err := core.ParseID(c.Args().First())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.DeleteKnowledge(c.Context, id)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	fmt.Fprintf(c.App.Writer, "deleted %s (%d fragments)\n", id, removed)
	return nil
}

func loadCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir := cfg.Loader.Path
	if c.NArg() > 0 {
		dir = c.Args().First()
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.LoadDirectory(c.Context, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "successful=%d failed=%d\n", res.Successful, res.Failed)
	for _, err := range res.Errors {
		fmt.Fprintln(c.App.ErrWriter, err)
	}
	return nil
}

func watchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir := cfg.Loader.Path
	if c.NArg() > 0 {
		dir = c.Args().First()
	}
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Loader.LoadOnStartup {
		res, err := svc.LoadDirectory(ctx, dir)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "successful=%d failed=%d\n", res.Successful, res.Failed)
	}

	out := c.App.Writer
	w, err := svc.Watch(dir,
		loader.WithDebounce(c.Duration("debounce")),
		loader.WithOnIngest(func(path string, res *ingestion.AddKnowledgeResult, err error) {
			if err != nil {
				fmt.Fprintf(c.App.ErrWriter, "%s: %v\n", path, err)
				return
			}
			fmt.Fprintf(out, "%s\t%s\tfragments=%d\n", res.DocumentID, path, res.FragmentCount)
		}),
	)
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Run(ctx); err != nil && !errors.Is(err, loader.ErrWatcherClosed) {
		return err
	}
	return nil
}

func reembedCommand(c *cli.Context) error {
	reembedConfig := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reembedConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reembedConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reembedConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	reembedConfig.Dimension = cfg.Embedding.Dimension
	svc, err := openService(cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	progress := c.App.ErrWriter
	fmt.Fprintf(progress, "Database: %s\n", cfg.Storage.Path)
	fmt.Fprintf(progress, "Embedding host: %s\n", cfg.Embedding.Host)
	fmt.Fprintf(progress, "Embedding model: %s\n", cfg.Embedding.Model)
	fmt.Fprintln(progress)

	if _, err := svc.Reembed(c.Context, reembedConfig, progress); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}
