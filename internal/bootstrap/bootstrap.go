// Package bootstrap resolves configuration into the running components
// shared by the HTTP server and the command-line tool. It holds wiring
// only.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"amble/internal/alerts"
	"amble/internal/config"
	"amble/internal/database"
	"amble/internal/jobs"
	"amble/internal/llm"
	"amble/internal/memory"
	"amble/internal/orchestrator"
	"amble/internal/persona"
	"amble/internal/services"
	"amble/internal/session"
	"amble/internal/store"
	"amble/internal/telemetry"
	"amble/internal/tools"
	"amble/internal/wellness"
)

// Options selects what Build wires.
type Options struct {
	// Registerer receives the custom metrics. Nil uses a private registry.
	Registerer prometheus.Registerer
	// RequireModel makes a missing or misconfigured language model fatal.
	RequireModel bool
}

// Components is the wired application.
type Components struct {
	Config    *config.Config
	Store     store.Store
	JobState  store.JobState
	Redis     *services.RedisService
	Semantic  memory.Semantic
	Metrics   *telemetry.Metrics
	Hub       *alerts.Hub
	Router    *alerts.Router
	Analyzer  *wellness.Analyzer
	Sessions  *session.Store
	Registry  *tools.Registry
	Scheduler *jobs.JobScheduler

	// Turns is nil when no model could be configured and RequireModel is false.
	Turns *orchestrator.Orchestrator

	closers []func() error
}

// Close releases every opened resource in reverse order.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build wires the application from cfg. On error every resource opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, opts Options) (c *Components, err error) {
	c = &Components{Config: cfg}
	defer func() {
		if err != nil {
			c.Close()
			c = nil
		}
	}()

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c.Metrics = telemetry.NewMetrics(reg)

	sqlDB, err := c.openStore(ctx, cfg)
	if err != nil {
		return c, err
	}

	if cfg.RedisURL != "" {
		rs, rerr := services.NewRedisService(cfg.RedisURL)
		if rerr != nil {
			log.Printf("⚠️  Redis unavailable, continuing without pub/sub and tick lock: %v", rerr)
		} else {
			c.Redis = rs
			c.closers = append(c.closers, rs.Close)
		}
	}

	js, ok := c.Store.(store.JobState)
	if !ok {
		return c, fmt.Errorf("record store %T does not keep job state", c.Store)
	}
	c.JobState = js
	if cfg.JobStateMode == "redis" {
		if c.Redis == nil {
			log.Printf("⚠️  JOB_STATE=redis but Redis is not connected, keeping job state in the record store")
		} else {
			c.JobState = c.Redis
			log.Println("✅ Scheduler job state kept in Redis")
		}
	}

	if c.Semantic, err = c.openSemantic(ctx, cfg, sqlDB); err != nil {
		return c, err
	}

	c.Hub = alerts.NewHub(func(n int) { c.Metrics.LiveConnections.Set(float64(n)) })
	c.Router = alerts.NewRouter(c.Store, c.Store, alerts.RouterOptions{
		Hub:             c.Hub,
		Metrics:         c.Metrics,
		DeliveryTimeout: cfg.DeliveryTimeout,
	})
	delivery, derr := config.LoadDelivery(cfg.DeliveryFile)
	if derr != nil {
		log.Printf("⚠️  Delivery config invalid, external alert delivery disabled: %v", derr)
		delivery = &config.DeliveryConfig{}
	}
	c.Router.ApplyDelivery(delivery, c.Publisher())
	c.closers = append(c.closers, func() error { c.Router.Wait(); return nil })

	c.Analyzer = wellness.NewAnalyzer(c.Store)
	c.Sessions = session.NewStore(cfg.SessionTTL)
	c.Registry = tools.NewDomainRegistry(tools.Deps{
		Store:      c.Store,
		Analyzer:   c.Analyzer,
		Router:     c.Router,
		DefaultLoc: cfg.Location(),
	})

	c.Scheduler = jobs.NewJobScheduler(jobs.Options{
		Profiles:   c.Store,
		State:      c.JobState,
		Locker:     c.locker(),
		Metrics:    c.Metrics,
		Tick:       cfg.SchedulerTick,
		DefaultLoc: cfg.Location(),
	})
	for _, job := range jobs.CompanionJobs(jobs.CompanionDeps{
		Store:    c.Store,
		Router:   c.Router,
		Analyzer: c.Analyzer,
		Grace:    cfg.SchedulerGrace,
	}) {
		c.Scheduler.Register(job)
	}

	model, merr := llm.New(ctx, cfg)
	if merr != nil {
		if opts.RequireModel {
			return c, fmt.Errorf("failed to configure language model: %w", merr)
		}
		log.Printf("⚠️  Language model not configured, conversation turns disabled: %v", merr)
		return c, nil
	}

	c.Turns = orchestrator.New(orchestrator.Options{
		Model:         model,
		Tools:         c.Registry,
		Composer:      memory.NewComposer(c.Semantic, c.Store, cfg.MemoryTopK),
		Semantic:      c.Semantic,
		Records:       c.Store,
		Sessions:      c.Sessions,
		Persona:       persona.Load(cfg.PersonaFile),
		Sink:          telemetry.Multi{telemetry.LogSink{}, c.Metrics},
		DefaultLoc:    cfg.Location(),
		RetryBackoff:  cfg.ModelRetryBackoff,
		TurnTimeout:   cfg.TurnTimeout,
		MaxIterations: cfg.MaxToolIterations,
	})
	log.Printf("✅ Conversation engine ready (provider: %s, tools: %d)", cfg.LLMProvider, c.Registry.Count())
	return c, nil
}

// openStore selects MongoDB for mongodb:// URLs and SQL otherwise. The
// returned handle is the SQLite database when the store is SQLite.
func (c *Components) openStore(ctx context.Context, cfg *config.Config) (*database.DB, error) {
	if strings.HasPrefix(cfg.DatabaseURL, "mongodb://") || strings.HasPrefix(cfg.DatabaseURL, "mongodb+srv://") {
		mdb, err := database.NewMongoDB(cfg.DatabaseURL, cfg.MongoDBName)
		if err != nil {
			return nil, err
		}
		if err := mdb.Initialize(ctx); err != nil {
			return nil, err
		}
		ms := store.NewMongoStore(mdb)
		c.Store = ms
		c.closers = append(c.closers, ms.Close)
		return nil, nil
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	ss := store.NewSQLStore(db)
	c.Store = ss
	c.closers = append(c.closers, ss.Close)
	if db.Dialect == database.DialectSQLite {
		return db, nil
	}
	return nil, nil
}

func (c *Components) openSemantic(ctx context.Context, cfg *config.Config, sqlDB *database.DB) (memory.Semantic, error) {
	switch cfg.SemanticMemory {
	case "off", "none", "":
		log.Println("ℹ️  Semantic memory disabled")
		return memory.Noop{}, nil
	case "remote":
		if cfg.MemoryServiceURL == "" {
			return nil, fmt.Errorf("SEMANTIC_MEMORY=remote requires MEMORY_SERVICE_URL")
		}
		log.Printf("✅ Semantic memory: remote service at %s", cfg.MemoryServiceURL)
		return memory.NewRemoteClient(cfg.MemoryServiceURL, cfg.MemoryServiceKey), nil
	case "local":
		if sqlDB == nil {
			idx, err := database.New(cfg.MemoryIndexPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open memory index: %w", err)
			}
			c.closers = append(c.closers, idx.Close)
			sqlDB = idx
		}
		fts, err := memory.NewFTSIndex(ctx, sqlDB.DB)
		if err != nil {
			return nil, err
		}
		log.Println("✅ Semantic memory: local full-text index")
		return fts, nil
	default:
		return nil, fmt.Errorf("unknown SEMANTIC_MEMORY %q", cfg.SemanticMemory)
	}
}

// Publisher is nil without Redis so redis channels are skipped.
func (c *Components) Publisher() alerts.Publisher {
	if c.Redis == nil {
		return nil
	}
	return c.Redis
}

func (c *Components) locker() jobs.Locker {
	if c.Redis == nil {
		return nil
	}
	return c.Redis
}
