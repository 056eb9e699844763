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

package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/knowledge"
	"github.com/poiesic/knowledge/config"
	"github.com/poiesic/knowledge/core"
)

// serviceOptions are appended to the options derived from the config.
var serviceOptions []knowledge.Option

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func scopeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "room",
			Usage: "Room id to scope to",
		},
		&cli.StringFlag{
			Name:  "world",
			Usage: "World id to scope to",
		},
		&cli.StringFlag{
			Name:  "entity",
			Usage: "Entity id to scope to",
		},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "knowledge",
		Usage: "Retrieval knowledge store for agents",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the config)",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Add files as knowledge documents",
				ArgsUsage: "<file...>",
				Action:    ingestCommand,
				Flags: append(scopeFlags(),
					&cli.BoolFlag{
						Name:  "update",
						Usage: "Replace documents that were already ingested",
					},
				),
			},
			{
				Name:      "character",
				Usage:     "Ingest character knowledge, one item per blank-line separated block",
				ArgsUsage: "<file>",
				Action:    characterCommand,
			},
			{
				Name:      "query",
				Usage:     "Search stored knowledge",
				ArgsUsage: "<text>",
				Action:    queryCommand,
				Flags: append(scopeFlags(),
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of results (defaults to the config)",
					},
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity (defaults to the config)",
					},
				),
			},
			{
				Name:   "list",
				Usage:  "List stored documents",
				Action: listCommand,
				Flags:  scopeFlags(),
			},
			{
				Name:      "delete",
				Usage:     "Delete a document and its fragments",
				ArgsUsage: "<id>",
				Action:    deleteCommand,
			},
			{
				Name:      "load",
				Usage:     "Load every file in a directory",
				ArgsUsage: "[dir]",
				Action:    loadCommand,
			},
			{
				Name:      "watch",
				Usage:     "Ingest files as they are created or modified",
				ArgsUsage: "[dir]",
				Action:    watchCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period before a changed file is ingested",
						Value: 500 * time.Millisecond,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed all fragments with the configured embedder",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of fragments to process in each batch",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N fragments",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

// loadConfig reads the configuration named by --config and applies --db.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if db := c.String("db"); db != "" {
		cfg.Storage.Path = db
	}
	return cfg, nil
}

func openService(cfg *config.Config) (*knowledge.Service, error) {
	opts, err := knowledge.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, knowledge.WithLogger(slog.Default()))
	opts = append(opts, serviceOptions...)

	svc, err := knowledge.Open(cfg.Storage.Path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge store: %w", err)
	}
	return svc, nil
}

// scopeFromFlags returns nil when no scope flag is set.
func scopeFromFlags(c *cli.Context) (*core.Scope, error) {
	var scope core.Scope
	set := false
	for name, field := range map[string]*core.ID{
		"room":   &scope.RoomID,
		"world":  &scope.WorldID,
		"entity": &scope.EntityID,
	} {
		v := c.String(name)
		if v == "" {
			continue
		}
		id, err := core.ParseID(v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", name, err)
		}
		*field = id
		set = true
	}
	if !set {
		return nil, nil
	}
	return &scope, nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
