package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type BaseEnv struct {
	Env      string `envconfig:"ENV" default:"local"`
	HTTPHost string `envconfig:"HTTP_HOST" default:"127.0.0.1"`
	HTTPPort string `envconfig:"HTTP_PORT" default:"3200"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// APIKey guards the HTTP API when set.
	APIKey string `envconfig:"API_KEY"`
}

type DatabaseEnv struct {
	Driver string `envconfig:"DB_DRIVER" default:"sqlite"`
	DSN    string `envconfig:"DB_DSN" default:".studyguild/assignments.db"`
	Debug  bool   `envconfig:"DB_DEBUG" default:"false"`
}

type StorageEnv struct {
	Type    string `envconfig:"STORAGE_TYPE" default:"local"`
	BaseDir string `envconfig:"STORAGE_BASE_DIR" default:".studyguild/data"`
	// S3 settings (used when Type == "s3")
	S3Bucket string `envconfig:"S3_BUCKET"`
	S3Prefix string `envconfig:"S3_PREFIX" default:"studyguild/"`
	S3Region string `envconfig:"S3_REGION" default:"ap-northeast-1"`
}

type LLMEnv struct {
	GeminiAPIKey      string        `envconfig:"GEMINI_API_KEY" required:"true"`
	Timeout           time.Duration `envconfig:"LLM_TIMEOUT" default:"90s"`
	OrchestratorModel string        `envconfig:"ORCHESTRATOR_MODEL" default:"gemini-2.5-flash"`
	ExtractorModel    string        `envconfig:"EXTRACTOR_MODEL" default:"gemini-2.5-flash"`
	SchedulerModel    string        `envconfig:"SCHEDULER_MODEL" default:"gemini-2.5-flash"`
	ProgressModel     string        `envconfig:"PROGRESS_MODEL" default:"gemini-2.5-flash"`
}

type AssistantEnv struct {
	MaxSteps         int           `envconfig:"ORCHESTRATOR_MAX_STEPS" default:"5"`
	UploadsDir       string        `envconfig:"UPLOADS_DIR" default:"uploads"`
	ReminderInterval time.Duration `envconfig:"REMINDER_INTERVAL" default:"1m"`
	ReminderWindow   time.Duration `envconfig:"REMINDER_WINDOW" default:"24h"`
}

type Env struct {
	BaseEnv
	DatabaseEnv
	StorageEnv
	LLMEnv
	AssistantEnv
}

const namespace = "STUDYGUILD"

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(namespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if env.MaxSteps < 1 {
		return nil, fmt.Errorf("failed to load env: %s_ORCHESTRATOR_MAX_STEPS must be at least 1", namespace)
	}
	if env.ReminderInterval <= 0 {
		return nil, fmt.Errorf("failed to load env: %s_REMINDER_INTERVAL must be positive", namespace)
	}
	return &env, nil
}

func (e *BaseEnv) SlogLevel() slog.Level {
	if e == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(e.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (e *BaseEnv) IsLocal() bool {
	return e == nil || e.Env == "local"
}
