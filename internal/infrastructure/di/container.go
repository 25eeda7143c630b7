// Package di wires the application together. Manual constructor
// injection, assembled strictly in dependency order: infrastructure,
// then application services, then the orchestrator.
package di

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/afero"

	agentgateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/agent"
	runnergateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/runner"
	storagegateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/storage"
	writergateway "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/adapter/gateway/writer"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app"
	appconfig "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/app/config"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/analyzer"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/classifier"
	escmanager "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/escalation"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/gate"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/orchestrator"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/port/output"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/selector"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/reference"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/repository"
	filepersist "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/infrastructure/persistence/file"
	sqlitepersist "github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/infrastructure/persistence/sqlite"
)

// Options carries the CLI-level knobs into container construction
type Options struct {
	Home                string  // Override for the vibecode home directory
	Workspace           string  // Project directory changes are applied to, default "."
	ConfidenceThreshold float64 // CLI override, 0 means keep configured value
	Autonomous          bool    // Treat every run as operator-approved
	AuditLogPath        string  // CLI override for the audit log location

	// Generation substitutes the generation gateway, for tests and the
	// mock backend. Nil selects the configured agent binary.
	Generation output.GenerationGateway
}

// Container holds the assembled object graph
type Container struct {
	paths  app.Paths
	cfg    *appconfig.AppConfig
	log    app.Logger
	db     *sql.DB
	fs     afero.Fs
	corpus reference.Corpus

	runRepo repository.RunRepository
	escRepo repository.EscalationRepository
	audit   repository.AuditLog

	generation output.GenerationGateway
	storage    output.StorageGateway
	writer     output.ArtifactWriter
	runner     output.CommandRunner

	orchestrator *orchestrator.Orchestrator
}

// NewContainer builds the full object graph from configuration
func NewContainer(opts Options) (*Container, error) {
	c := &Container{fs: afero.NewOsFs()}

	if err := c.initConfig(opts); err != nil {
		return nil, fmt.Errorf("initialize config: %w", err)
	}
	if err := c.initInfrastructure(opts); err != nil {
		return nil, fmt.Errorf("initialize infrastructure: %w", err)
	}
	c.initApplication()
	return c, nil
}

func (c *Container) initConfig(opts Options) error {
	if opts.Home != "" {
		c.paths = app.ResolvePathsFrom(opts.Home)
	} else {
		c.paths = app.ResolvePaths()
	}

	for _, dir := range []string{c.paths.Etc, c.paths.Artifacts, c.paths.Approvals} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	cfg, err := appconfig.Load(c.fs, c.paths.Home, c.paths.Setting)
	if err != nil {
		return err
	}
	if err := cfg.Override(opts.ConfidenceThreshold, opts.Autonomous, opts.AuditLogPath); err != nil {
		return err
	}
	c.cfg = cfg

	c.log = app.NewLogger(cfg.StderrLevel())
	app.SetLogger(c.log)

	corpus, err := reference.LoadCorpus(c.fs, c.paths.Corpus)
	if err != nil {
		c.log.Debug("no corpus manifest at %s, using built-in corpus", c.paths.Corpus)
		corpus = reference.DefaultCorpus()
	}
	c.corpus = corpus
	return nil
}

func (c *Container) initInfrastructure(opts Options) error {
	db, err := sql.Open("sqlite3", c.paths.StateDB+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	if err := sqlitepersist.NewMigrator(db).Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate state db: %w", err)
	}
	c.db = db

	c.runRepo = sqlitepersist.NewRunRepository(db)
	c.escRepo = sqlitepersist.NewEscalationRepository(db)

	auditPath := c.cfg.AuditLogPath()
	if auditPath == "" {
		auditPath = c.paths.AuditLog
	}
	c.audit = filepersist.NewAuditLog(auditPath, c.log)

	if opts.Generation != nil {
		c.generation = opts.Generation
	} else {
		c.generation = agentgateway.NewClaudeCLIGateway(c.cfg.AgentBin(), c.cfg.Timeout())
	}

	if c.cfg.S3Bucket() != "" {
		s3gw, err := storagegateway.NewS3StorageGateway(storagegateway.S3Config{
			BucketName: c.cfg.S3Bucket(),
			Prefix:     c.cfg.S3Prefix(),
			Region:     c.cfg.S3Region(),
		})
		if err != nil {
			return fmt.Errorf("initialize s3 storage: %w", err)
		}
		c.storage = s3gw
	} else {
		local, err := storagegateway.NewLocalStorageGateway(c.fs, c.paths.Artifacts)
		if err != nil {
			return fmt.Errorf("initialize local storage: %w", err)
		}
		c.storage = local
	}

	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	c.writer = writergateway.New(c.fs, workspace, writergateway.DefaultMaxChangeBytes)
	c.runner = runnergateway.New()
	return nil
}

func (c *Container) initApplication() {
	g := gate.New(c.audit, c.cfg.ConfidenceThreshold(), c.cfg.DestructiveFloor(), c.log)
	esc := escmanager.NewManager(c.escRepo, escmanager.GlobalCaps{
		SignatureRecurrence: c.cfg.MaxSignatureRecurrence(),
		RunFailures:         c.cfg.MaxRunFailures(),
		StageRetries:        c.cfg.MaxStageRetries(),
	}, c.log)

	c.orchestrator = orchestrator.New(
		classifier.New(),
		selector.New(),
		analyzer.New(c.fs, c.log),
		g,
		esc,
		c.generation,
		c.storage,
		c.writer,
		c.runner,
		c.runRepo,
		c.audit,
		c.corpus,
		c.cfg,
		c.log,
	)
}

// Orchestrator returns the assembled pipeline orchestrator
func (c *Container) Orchestrator() *orchestrator.Orchestrator {
	return c.orchestrator
}

// Config returns the effective configuration
func (c *Container) Config() *appconfig.AppConfig {
	return c.cfg
}

// Paths returns the resolved home directory layout
func (c *Container) Paths() app.Paths {
	return c.paths
}

// Logger returns the configured logger
func (c *Container) Logger() app.Logger {
	return c.log
}

// RunRepository exposes run persistence for read-only commands
func (c *Container) RunRepository() repository.RunRepository {
	return c.runRepo
}

// EscalationRepository exposes escalation state for the breaker command
func (c *Container) EscalationRepository() repository.EscalationRepository {
	return c.escRepo
}

// AuditLog exposes the decision trail for read-only commands
func (c *Container) AuditLog() repository.AuditLog {
	return c.audit
}

// Close releases held resources
func (c *Container) Close() error {
	var errs []error
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close state db: %w", err))
		}
	}
	return errors.Join(errs...)
}

// HealthCheck verifies the generation backend is reachable
func (c *Container) HealthCheck(ctx context.Context) error {
	return c.generation.HealthCheck(ctx)
}
