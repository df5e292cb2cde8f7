package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/recon-pipeline/internal/aggregate"
	"github.com/sells-group/recon-pipeline/internal/config"
	"github.com/sells-group/recon-pipeline/internal/discovery"
	"github.com/sells-group/recon-pipeline/internal/notify"
	"github.com/sells-group/recon-pipeline/internal/pretext"
	"github.com/sells-group/recon-pipeline/internal/profile"
	"github.com/sells-group/recon-pipeline/internal/prompts"
	"github.com/sells-group/recon-pipeline/internal/queue"
	"github.com/sells-group/recon-pipeline/internal/recon"
	"github.com/sells-group/recon-pipeline/internal/scrape"
	"github.com/sells-group/recon-pipeline/internal/store"
	"github.com/sells-group/recon-pipeline/pkg/anthropic"
	"github.com/sells-group/recon-pipeline/pkg/autodiscover"
	"github.com/sells-group/recon-pipeline/pkg/hunter"
)

// env bundles the wired pipeline for commands.
type env struct {
	Store        store.Store
	Broker       *queue.Broker
	Hub          *notify.Hub
	Aggregator   *aggregate.Aggregator
	Discovery    *discovery.Stage
	Recon        *recon.Intake
	Scrape       *scrape.Stage
	Profile      *profile.Stage
	Pretext      *pretext.Stage
	Autodiscover *autodiscover.Client
}

// initEnv opens the store and broker, runs migrations, loads the prompt
// library, and wires every stage.
func initEnv(ctx context.Context) (*env, error) {
	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}

	broker, err := queue.NewBroker(cfg.Queue.BrokerPath)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := broker.Migrate(ctx); err != nil {
		broker.Close()
		s.Close()
		return nil, err
	}
	if requeued, err := broker.Recover(ctx); err != nil {
		broker.Close()
		s.Close()
		return nil, err
	} else if requeued > 0 {
		zap.L().Info("requeued interrupted jobs", zap.Int("count", requeued))
	}

	if n, err := prompts.Load(ctx, s, cfg.Prompts.Dir); err != nil {
		zap.L().Warn("prompt library load failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("prompt library loaded", zap.Int("inserted", n))
	}

	hub := notify.NewHub()
	agg := aggregate.New(s, hub)
	client := anthropic.NewClient(cfg.Anthropic.Key)

	e := &env{
		Store:      s,
		Broker:     broker,
		Hub:        hub,
		Aggregator: agg,
		Discovery:  discovery.New(s, hub, time.Duration(cfg.Discovery.TimeoutSecs)*time.Second),
		Recon: recon.New(s, hub,
			hunter.NewClient(cfg.Hunter.BaseURL, cfg.Hunter.Key), cfg.Hunter.Limit),
		Scrape: scrape.New(s, hub, agg, scrape.Options{
			Timeout:       time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
			MaxBodyBytes:  cfg.Scrape.MaxBodyBytes,
			UserAgent:     cfg.Scrape.UserAgent,
			RatePerSecond: cfg.Scrape.RatePerSecond,
		}),
		Profile: profile.New(s, hub, client,
			cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.ProfileTemperature),
		Pretext: pretext.New(s, hub, client,
			cfg.Anthropic.Model, cfg.Anthropic.MaxTokens, cfg.Anthropic.PretextTemperature),
		Autodiscover: autodiscover.NewClient(cfg.Autodiscover.Endpoint,
			time.Duration(cfg.Autodiscover.TimeoutSecs)*time.Second),
	}
	return e, nil
}

func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL)
	case "sqlite", "":
		return store.NewSQLite(sc.SQLitePath)
	default:
		return nil, eris.Errorf("unknown store driver: %s", sc.Driver)
	}
}

// workerPool registers every stage handler with its configured concurrency.
func (e *env) workerPool() *queue.Pool {
	pool := queue.NewPool(e.Broker, time.Duration(cfg.Queue.PollIntervalMillis)*time.Millisecond)
	pool.Register(queue.StageDiscovery, cfg.Queue.DiscoveryConcurrency, e.Discovery.Handle)
	pool.Register(queue.StageScrape, cfg.Queue.ScrapeConcurrency, e.Scrape.Handle)
	pool.Register(queue.StageProfile, cfg.Queue.ProfileConcurrency, e.Profile.Handle)
	pool.Register(queue.StagePretext, cfg.Queue.PretextConcurrency, e.Pretext.Handle)
	return pool
}

func (e *env) Close() {
	if err := e.Broker.Close(); err != nil {
		zap.L().Warn("broker close failed", zap.Error(err))
	}
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("store close failed", zap.Error(err))
	}
}
