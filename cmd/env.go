package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/browser"
	"github.com/zhfmzl/priceUpdate-BTB/internal/campaign"
	"github.com/zhfmzl/priceUpdate-BTB/internal/config"
	"github.com/zhfmzl/priceUpdate-BTB/internal/docstore"
	"github.com/zhfmzl/priceUpdate-BTB/internal/exclusion"
	"github.com/zhfmzl/priceUpdate-BTB/internal/extract"
	"github.com/zhfmzl/priceUpdate-BTB/internal/pricing"
	"github.com/zhfmzl/priceUpdate-BTB/internal/query"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
	"github.com/zhfmzl/priceUpdate-BTB/internal/store"
)

// campaignEnv holds the initialized dependencies of the campaign commands.
type campaignEnv struct {
	Store   store.Store
	Mongo   *docstore.Client
	Builder *query.Builder
	Runner  *campaign.Runner
	Session *browser.Session
}

// Close releases every resource in the env.
func (e *campaignEnv) Close() {
	if e.Session != nil {
		if err := e.Session.Close(); err != nil {
			zap.L().Warn("close browser session", zap.Error(err))
		}
	}
	if e.Mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.Mongo.Close(ctx); err != nil {
			zap.L().Warn("close mongo", zap.Error(err))
		}
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// envOptions overrides campaign settings from command flags.
type envOptions struct {
	Concurrency   int
	Grouping      string
	FailurePolicy string
	ExclusionFile string
	DryRun        bool
}

// initStore opens and migrates the run ledger.
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initMongo connects to the document store.
func initMongo(ctx context.Context) (*docstore.Client, error) {
	client, err := docstore.Connect(ctx, docstore.Config{
		URL:            cfg.Mongo.URL,
		Database:       cfg.Mongo.Database,
		ConnectTimeout: time.Duration(cfg.Mongo.ConnectTimeoutSecs) * time.Second,
		MaxPoolSize:    cfg.Mongo.MaxPoolSize,
	})
	if err != nil {
		return nil, resilience.Configuration("mongo", err)
	}
	return client, nil
}

// initSearch builds the env needed by read-only commands.
func initSearch(ctx context.Context, mode string) (*campaignEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	mongo, err := initMongo(ctx)
	if err != nil {
		return nil, err
	}
	return &campaignEnv{
		Mongo:   mongo,
		Builder: newBuilder(cfg, mongo.Reports()),
	}, nil
}

// initCampaign builds the full campaign env. A dry run writes prices to an
// in-process store instead of Mongo.
func initCampaign(ctx context.Context, mode string, opts envOptions) (*campaignEnv, error) {
	applyOverrides(cfg, opts)
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	grouping, err := campaign.ParseGrouping(cfg.Campaign.Grouping)
	if err != nil {
		return nil, resilience.Configuration("campaign", err)
	}
	policy, err := pricing.ParsePolicy(cfg.Campaign.FailurePolicy)
	if err != nil {
		return nil, resilience.Configuration("campaign", err)
	}
	excluded, err := exclusion.Load(cfg.Campaign.ExclusionFile)
	if err != nil {
		return nil, resilience.Configuration("campaign", err)
	}

	env := &campaignEnv{}
	env.Store, err = initStore(ctx)
	if err != nil {
		return nil, err
	}
	env.Mongo, err = initMongo(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	var prices pricing.Store = env.Mongo.Prices()
	if opts.DryRun {
		prices = docstore.NewMemoryPrices()
		zap.L().Info("dry run: prices are not persisted")
	} else if err := env.Mongo.EnsureIndexes(ctx); err != nil {
		env.Close()
		return nil, err
	}

	env.Builder = newBuilder(cfg, env.Mongo.Reports())
	env.Session = browser.NewSession(browserConfig(cfg))
	env.Runner = campaign.NewRunner(
		campaign.NewPool(cfg.Campaign.Concurrency, excluded, cfg.Campaign.RatePerSec),
		campaign.NewSessionBrowser(env.Session, browser.NewFilter(cfg.Filter.BlockedTypes, cfg.Filter.BlockedDomains), extractConfig(cfg)),
		pricing.NewWriter(prices, policy),
		env.Builder,
		env.Store,
		campaign.Options{Grouping: grouping, DLQMaxRetries: cfg.Campaign.DLQMaxRetries},
	)

	zap.L().Info("campaign env ready",
		zap.Int("concurrency", cfg.Campaign.Concurrency),
		zap.String("grouping", string(grouping)),
		zap.String("failure_policy", string(policy)),
		zap.Int("excluded", excluded.Len()),
	)
	return env, nil
}

func applyOverrides(c *config.Config, opts envOptions) {
	if opts.Concurrency > 0 {
		c.Campaign.Concurrency = opts.Concurrency
	}
	if opts.Grouping != "" {
		c.Campaign.Grouping = opts.Grouping
	}
	if opts.FailurePolicy != "" {
		c.Campaign.FailurePolicy = opts.FailurePolicy
	}
	if opts.ExclusionFile != "" {
		c.Campaign.ExclusionFile = opts.ExclusionFile
	}
}

func newBuilder(c *config.Config, src query.Source) *query.Builder {
	return query.NewBuilder(src, query.Config{
		Limit: c.Query.Limit,
		Retry: resilience.FromRetryConfig(c.Retry.MaxAttempts, c.Retry.InitialBackoffMs, c.Retry.MaxBackoffMs),
	})
}

func browserConfig(c *config.Config) browser.Config {
	return browser.Config{
		Bin:         c.ChromeBin(),
		DebuggerURL: c.Browser.DebuggerURL,
		Headless:    c.Browser.Headless,
		Stealth:     c.Browser.Stealth,
		Flags:       c.Browser.Flags,
	}
}

func extractConfig(c *config.Config) extract.Config {
	return extract.Config{
		URLTemplate:     c.Extract.URLTemplate,
		Selector:        c.Extract.Selector,
		ReadyAttr:       c.Extract.ReadyAttr,
		ValueAttr:       c.Extract.ValueAttr,
		ReadyTimeout:    c.Extract.ReadyTimeout(),
		NavigateTimeout: c.Extract.NavigateTimeout(),
	}
}
