package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port        int    `yaml:"port"`
	GinMode     string `yaml:"gin_mode"`
	TLSCertFile string `yaml:"tls_cert_file"`
	TLSKeyFile  string `yaml:"tls_key_file"`

	DataDir           string `yaml:"data_dir"`
	DatabasePath      string `yaml:"database_path"`
	SchemaVersionFile string `yaml:"schema_version_file"`

	GithubSecret   string        `yaml:"github_secret"`
	DeployScript   string        `yaml:"deploy_script"`
	RefreshCommand string        `yaml:"refresh_command"`
	DeployTimeout  time.Duration `yaml:"deploy_timeout"`

	TokenTTL           time.Duration `yaml:"token_ttl"`
	AuthRequired       bool          `yaml:"auth_required"`
	TokenSweepSchedule string        `yaml:"token_sweep_schedule"`

	LogLevel    string   `yaml:"log_level"`
	StaticDir   string   `yaml:"static_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

func Default() Config {
	return Config{
		Port:               8000,
		GinMode:            "release",
		DataDir:            ".data",
		DeployScript:       "git.sh",
		RefreshCommand:     "refresh",
		DeployTimeout:      5 * time.Minute,
		TokenTTL:           10 * 24 * time.Hour,
		TokenSweepSchedule: "0 3 * * *",
		LogLevel:           "info",
		CORSOrigins:        []string{"*"},
	}
}

func LoadConfig() (Config, error) {
	return LoadConfigFromEnv(osEnv{})
}

// LoadConfigFromEnv layers defaults, the YAML file named by CONFIG_FILE (if
// any) and then individual environment variables.
func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Default()

	if path := env.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	var errs []string
	invalid := func(key string) { errs = append(errs, "invalid "+key) }

	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			invalid("PORT")
		} else {
			cfg.Port = port
		}
	}
	setString(env, "GIN_MODE", &cfg.GinMode)
	setString(env, "TLS_CERT_FILE", &cfg.TLSCertFile)
	setString(env, "TLS_KEY_FILE", &cfg.TLSKeyFile)
	setString(env, "DATA_DIR", &cfg.DataDir)
	setString(env, "DATABASE_PATH", &cfg.DatabasePath)
	setString(env, "SCHEMA_VERSION_FILE", &cfg.SchemaVersionFile)
	setString(env, "GITHUB_SECRET", &cfg.GithubSecret)
	setString(env, "DEPLOY_SCRIPT", &cfg.DeployScript)
	setString(env, "REFRESH_COMMAND", &cfg.RefreshCommand)
	setString(env, "LOG_LEVEL", &cfg.LogLevel)
	setString(env, "STATIC_DIR", &cfg.StaticDir)
	setString(env, "TOKEN_SWEEP_SCHEDULE", &cfg.TokenSweepSchedule)

	if raw := env.Getenv("DEPLOY_TIMEOUT_SECONDS"); raw != "" {
		if d, ok := parseSeconds(raw); ok {
			cfg.DeployTimeout = d
		} else {
			invalid("DEPLOY_TIMEOUT_SECONDS")
		}
	}
	if raw := env.Getenv("TOKEN_TTL_SECONDS"); raw != "" {
		if d, ok := parseSeconds(raw); ok {
			cfg.TokenTTL = d
		} else {
			invalid("TOKEN_TTL_SECONDS")
		}
	}
	if raw := env.Getenv("AUTH_REQUIRED"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			invalid("AUTH_REQUIRED")
		} else {
			cfg.AuthRequired = v
		}
	}
	if raw := env.Getenv("CORS_ORIGINS"); raw != "" {
		cfg.CORSOrigins = splitList(raw)
	}

	cfg.applyDefaults()
	errs = append(errs, cfg.problems()...)
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// applyDefaults fills in values derived from other fields.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = ".data"
	}
	if c.DatabasePath == "" {
		c.DatabasePath = filepath.Join(c.DataDir, "fitsbook.db")
	}
	if c.SchemaVersionFile == "" {
		c.SchemaVersionFile = filepath.Join(c.DataDir, "fitsbook.version")
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
}

func (c *Config) problems() []string {
	var errs []string
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}
	if c.DeployTimeout <= 0 {
		errs = append(errs, "deploy_timeout must be positive")
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, "token_ttl must be positive")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}
	for _, origin := range c.CORSOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Sprintf("cors origin %q must be * or start with http:// or https://", origin))
		}
	}
	if c.TokenSweepSchedule != "" {
		if _, err := cron.ParseStandard(c.TokenSweepSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("token_sweep_schedule: %v", err))
		}
	}
	return errs
}

func setString(env Env, key string, dst *string) {
	if raw := env.Getenv(key); raw != "" {
		*dst = raw
	}
}

func parseSeconds(raw string) (time.Duration, bool) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
