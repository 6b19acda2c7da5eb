package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/JonMunkholm/material-finder/internal/config"
	"github.com/JonMunkholm/material-finder/internal/core"
	"github.com/JonMunkholm/material-finder/internal/logging"
	"github.com/JonMunkholm/material-finder/internal/sheets"
	"github.com/joho/godotenv"
)

type commandContext struct {
	sheetURLFlag *string
	filtersFlag  *string
	verboseFlag  *bool

	once   sync.Once
	cfg    *config.Config
	engine *core.Engine
	store  *core.Store
	err    error
}

func newCommandContext(sheetURL, filters *string, verbose *bool) *commandContext {
	return &commandContext{
		sheetURLFlag: sheetURL,
		filtersFlag:  filters,
		verboseFlag:  verbose,
	}
}

// ensureEngine loads configuration once and builds the search engine.
// Flags override the environment.
func (c *commandContext) ensureEngine() (*core.Engine, error) {
	c.once.Do(func() {
		// A missing .env file is fine.
		_ = godotenv.Load()

		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		if url := strings.TrimSpace(*c.sheetURLFlag); url != "" {
			cfg.Source.URL = url
		}
		if path := strings.TrimSpace(*c.filtersFlag); path != "" {
			cfg.Filters.File = path
		}

		level := "warn"
		if *c.verboseFlag {
			level = "debug"
		}
		// stdout is reserved for results.
		slog.SetDefault(logging.New(os.Stderr, level, "text"))

		filters, err := config.LoadFilters(cfg.Filters.File)
		if err != nil {
			c.err = err
			return
		}

		client := sheets.New(sheets.Config{
			URL:            cfg.Source.URL,
			UserAgent:      cfg.Source.UserAgent,
			RetryUserAgent: cfg.Source.RetryUserAgent,
			MaxBodySize:    cfg.Source.MaxBodySize,
		})
		c.store = core.NewStore(client, core.StoreConfig{
			CacheDuration:  cfg.Cache.Duration,
			PrimaryTimeout: cfg.Source.Timeout,
			RetryTimeout:   cfg.Source.RetryTimeout,
		})
		c.engine = core.NewEngine(c.store, config.FilterFields(filters))
		c.cfg = cfg
	})
	return c.engine, c.err
}
