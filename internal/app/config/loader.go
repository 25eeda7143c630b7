package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Default policy constants. The thresholds are policy knobs, not derived
// cutoffs; the destructive floor is deliberately not configurable.
const (
	DefaultConfidenceThreshold = 0.8
	DestructiveFloorPolicy     = 0.5

	defaultTimeoutSec    = 600
	defaultMaxSigRecur   = 3
	defaultMaxRunFails   = 5
	defaultMaxStageRetry = 3
	defaultBundleByteCap = 32 * 1024
	defaultSelectK       = 3
)

// setting is the on-disk shape of etc/setting.yaml
type setting struct {
	AgentBin            string   `yaml:"agent_bin"`
	TimeoutSec          int      `yaml:"timeout_sec"`
	ConfidenceThreshold *float64 `yaml:"confidence_threshold"`
	Autonomous          *bool    `yaml:"autonomous"`
	BundleByteCap       int      `yaml:"bundle_byte_cap"`
	SelectK             int      `yaml:"select_k"`
	S3Bucket            string   `yaml:"s3_bucket"`
	S3Prefix            string   `yaml:"s3_prefix"`
	S3Region            string   `yaml:"s3_region"`
	AuditLog            string   `yaml:"audit_log"`
	StderrLevel         string   `yaml:"stderr_level"`
}

// Load builds the effective configuration. Precedence, lowest first:
// built-in defaults, etc/setting.yaml, environment (including .env if
// present). The home directory itself comes from VIBE_HOME.
func Load(fs afero.Fs, home, settingPath string) (*AppConfig, error) {
	// .env is optional; ignore a missing file
	_ = godotenv.Load()

	c := &AppConfig{
		home:                   home,
		agentBin:               "claude",
		timeoutSec:             defaultTimeoutSec,
		confidenceThreshold:    DefaultConfidenceThreshold,
		destructiveFloor:       DestructiveFloorPolicy,
		maxSignatureRecurrence: defaultMaxSigRecur,
		maxRunFailures:         defaultMaxRunFails,
		maxStageRetries:        defaultMaxStageRetry,
		bundleByteCap:          defaultBundleByteCap,
		selectK:                defaultSelectK,
		stderrLevel:            "info",
		configSource:           "default",
	}

	if settingPath != "" {
		if data, err := afero.ReadFile(fs, settingPath); err == nil {
			var s setting
			if err := yaml.Unmarshal(data, &s); err != nil {
				return nil, fmt.Errorf("parse %s: %w", settingPath, err)
			}
			applySetting(c, &s)
			c.configSource = "yaml"
			c.settingPath = settingPath
		}
	}

	applyEnv(c)
	if err := validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

func applySetting(c *AppConfig, s *setting) {
	if s.AgentBin != "" {
		c.agentBin = s.AgentBin
	}
	if s.TimeoutSec > 0 {
		c.timeoutSec = s.TimeoutSec
	}
	if s.ConfidenceThreshold != nil {
		c.confidenceThreshold = *s.ConfidenceThreshold
	}
	if s.Autonomous != nil {
		c.autoApprove = *s.Autonomous
	}
	if s.BundleByteCap > 0 {
		c.bundleByteCap = s.BundleByteCap
	}
	if s.SelectK > 0 {
		c.selectK = s.SelectK
	}
	if s.S3Bucket != "" {
		c.s3Bucket = s.S3Bucket
	}
	if s.S3Prefix != "" {
		c.s3Prefix = s.S3Prefix
	}
	if s.S3Region != "" {
		c.s3Region = s.S3Region
	}
	if s.AuditLog != "" {
		c.auditLogPath = s.AuditLog
	}
	if s.StderrLevel != "" {
		c.stderrLevel = s.StderrLevel
	}
}

func applyEnv(c *AppConfig) {
	if v := os.Getenv("VIBE_AGENT_BIN"); v != "" {
		c.agentBin = v
		c.configSource = "env"
	}
	if v := os.Getenv("VIBE_TIMEOUT_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.timeoutSec = n
			c.configSource = "env"
		}
	}
	if v := os.Getenv("VIBE_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.confidenceThreshold = f
			c.configSource = "env"
		}
	}
	if v := os.Getenv("VIBE_AUTONOMOUS"); v != "" {
		c.autoApprove = isTruthy(v)
		c.configSource = "env"
	}
	if v := os.Getenv("VIBE_S3_BUCKET"); v != "" {
		c.s3Bucket = v
		c.configSource = "env"
	}
	if v := os.Getenv("VIBE_S3_PREFIX"); v != "" {
		c.s3Prefix = v
	}
	if v := os.Getenv("VIBE_S3_REGION"); v != "" {
		c.s3Region = v
	}
	if v := os.Getenv("VIBE_AUDIT_LOG"); v != "" {
		c.auditLogPath = v
		c.configSource = "env"
	}
	if v := os.Getenv("VIBE_STDERR_LEVEL"); v != "" {
		c.stderrLevel = v
	}
}

func validate(c *AppConfig) error {
	if c.confidenceThreshold < 0 || c.confidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold %.2f out of range [0,1]", c.confidenceThreshold)
	}
	if c.confidenceThreshold < c.destructiveFloor {
		return fmt.Errorf("confidence threshold %.2f below destructive floor %.2f", c.confidenceThreshold, c.destructiveFloor)
	}
	return nil
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Override applies CLI-level overrides on top of a loaded config.
// Zero values leave the loaded value in place. The result is revalidated:
// a flag must not admit a threshold the loader would have refused.
func (c *AppConfig) Override(confidenceThreshold float64, autonomous bool, auditLogPath string) error {
	if confidenceThreshold > 0 {
		c.confidenceThreshold = confidenceThreshold
	}
	if autonomous {
		c.autoApprove = true
	}
	if auditLogPath != "" {
		c.auditLogPath = auditLogPath
	}
	return validate(c)
}
