package config

import "time"

// Config provides read-only access to application configuration.
// This interface abstracts the configuration source (YAML, ENV, defaults)
// and ensures the app layer doesn't depend on infrastructure details.
type Config interface {
	// Core settings
	Home() string           // Base directory (VIBE_HOME)
	AgentBin() string       // Generation agent binary path (VIBE_AGENT_BIN)
	TimeoutSec() int        // Per-stage execution timeout in seconds (VIBE_TIMEOUT_SEC)
	Timeout() time.Duration // Per-stage timeout as Duration

	// Autonomy policy
	ConfidenceThreshold() float64 // Auto-approve threshold, default 0.8 (VIBE_CONFIDENCE_THRESHOLD)
	DestructiveFloor() float64    // Hard reject floor for destructive actions, fixed policy 0.5
	AutoApprove() bool            // Autonomous mode: treat gate rejections as pauses, not prompts (VIBE_AUTONOMOUS)

	// Escalation policy
	MaxSignatureRecurrence() int // Global breaker: same signature recurrences (default 3)
	MaxRunFailures() int         // Global breaker: total failures per run (default 5)
	MaxStageRetries() int        // Global breaker: retries of a single stage (default 3)

	// Context assembly
	BundleByteCap() int // Max context bundle size in bytes (default 32768)
	SelectK() int       // Reference modules selected per stage (default 3)

	// Artifact storage
	S3Bucket() string // If set, artifacts go to S3 instead of local storage (VIBE_S3_BUCKET)
	S3Prefix() string // Optional key prefix (VIBE_S3_PREFIX)
	S3Region() string // AWS region override (VIBE_S3_REGION)

	// Paths and logging
	AuditLogPath() string // Audit log override (VIBE_AUDIT_LOG)
	StderrLevel() string  // Stderr log level (VIBE_STDERR_LEVEL)

	// Metadata
	ConfigSource() string // Source of configuration: "yaml", "env", or "default"
	SettingPath() string  // Path to setting.yaml if loaded from file
}

// AppConfig is the concrete implementation of Config interface.
type AppConfig struct {
	home       string
	agentBin   string
	timeoutSec int

	confidenceThreshold float64
	destructiveFloor    float64
	autoApprove         bool

	maxSignatureRecurrence int
	maxRunFailures         int
	maxStageRetries        int

	bundleByteCap int
	selectK       int

	s3Bucket string
	s3Prefix string
	s3Region string

	auditLogPath string
	stderrLevel  string

	configSource string
	settingPath  string
}

// Home returns the base directory
func (c *AppConfig) Home() string { return c.home }

// AgentBin returns the generation agent binary path
func (c *AppConfig) AgentBin() string { return c.agentBin }

// TimeoutSec returns the per-stage timeout in seconds
func (c *AppConfig) TimeoutSec() int { return c.timeoutSec }

// Timeout returns the per-stage timeout as a Duration
func (c *AppConfig) Timeout() time.Duration {
	return time.Duration(c.timeoutSec) * time.Second
}

// ConfidenceThreshold returns the auto-approve threshold
func (c *AppConfig) ConfidenceThreshold() float64 { return c.confidenceThreshold }

// DestructiveFloor returns the destructive-action reject floor
func (c *AppConfig) DestructiveFloor() float64 { return c.destructiveFloor }

// AutoApprove returns whether autonomous mode is enabled
func (c *AppConfig) AutoApprove() bool { return c.autoApprove }

// MaxSignatureRecurrence returns the global breaker signature cap
func (c *AppConfig) MaxSignatureRecurrence() int { return c.maxSignatureRecurrence }

// MaxRunFailures returns the global breaker per-run failure cap
func (c *AppConfig) MaxRunFailures() int { return c.maxRunFailures }

// MaxStageRetries returns the global breaker per-stage retry cap
func (c *AppConfig) MaxStageRetries() int { return c.maxStageRetries }

// BundleByteCap returns the context bundle size cap in bytes
func (c *AppConfig) BundleByteCap() int { return c.bundleByteCap }

// SelectK returns how many reference modules are selected per stage
func (c *AppConfig) SelectK() int { return c.selectK }

// S3Bucket returns the artifact bucket name, empty for local storage
func (c *AppConfig) S3Bucket() string { return c.s3Bucket }

// S3Prefix returns the artifact key prefix
func (c *AppConfig) S3Prefix() string { return c.s3Prefix }

// S3Region returns the AWS region override
func (c *AppConfig) S3Region() string { return c.s3Region }

// AuditLogPath returns the audit log path override
func (c *AppConfig) AuditLogPath() string { return c.auditLogPath }

// StderrLevel returns the stderr log level
func (c *AppConfig) StderrLevel() string { return c.stderrLevel }

// ConfigSource returns the source of configuration
func (c *AppConfig) ConfigSource() string { return c.configSource }

// SettingPath returns the path to setting.yaml if loaded from file
func (c *AppConfig) SettingPath() string { return c.settingPath }
