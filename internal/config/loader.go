package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so keys and passwords can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.LLM.APIKey = expandEnvVars(cfg.LLM.APIKey)
	cfg.LLM.Instructions = expandEnvVars(cfg.LLM.Instructions)
	for i := range cfg.LLM.Fallbacks {
		cfg.LLM.Fallbacks[i].APIKey = expandEnvVars(cfg.LLM.Fallbacks[i].APIKey)
	}
	cfg.Mail.SMTP.Password = expandEnvVars(cfg.Mail.SMTP.Password)
	cfg.Mail.To = expandEnvVars(cfg.Mail.To)
}

// LoadDotEnv loads KEY=VALUE pairs from the given files (".env" when none
// are named) into the process environment. Variables already set win.
// Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return &ConfigError{Message: "failed to load " + f + ": " + err.Error()}
		}
	}
	return nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	def := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = def.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = def.Gateway.Bind
	}
	if len(cfg.Gateway.AllowedOrigins) == 0 {
		cfg.Gateway.AllowedOrigins = def.Gateway.AllowedOrigins
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = def.LLM.Provider
	}
	if cfg.LLM.TimeoutSeconds == 0 {
		cfg.LLM.TimeoutSeconds = def.LLM.TimeoutSeconds
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = def.Store.Driver
	}
	if cfg.Remote.Driver == "" {
		cfg.Remote.Driver = def.Remote.Driver
	}
	if cfg.Mail.Driver == "" {
		cfg.Mail.Driver = def.Mail.Driver
	}
	if cfg.Mail.Subject == "" {
		cfg.Mail.Subject = def.Mail.Subject
	}
	if cfg.Mail.SMTP.Port == 0 {
		cfg.Mail.SMTP.Port = def.Mail.SMTP.Port
	}
	if cfg.Delivery.NotifyDelayMinutes == 0 {
		cfg.Delivery.NotifyDelayMinutes = def.Delivery.NotifyDelayMinutes
	}
	if cfg.Delivery.UploadTimeoutSeconds == 0 {
		cfg.Delivery.UploadTimeoutSeconds = def.Delivery.UploadTimeoutSeconds
	}
	if cfg.Delivery.MailTimeoutSeconds == 0 {
		cfg.Delivery.MailTimeoutSeconds = def.Delivery.MailTimeoutSeconds
	}
	if cfg.Delivery.NamePrefix == "" {
		cfg.Delivery.NamePrefix = def.Delivery.NamePrefix
	}
	if cfg.Render.Format == "" {
		cfg.Render.Format = def.Render.Format
	}
	if cfg.Render.Locale == "" {
		cfg.Render.Locale = def.Render.Locale
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = def.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads CHATRELAY_* variables, plus the plain API_KEY /
// OPENAI_MODEL / INSTRUCTIONS / MAIL_TO names a relay .env file carries.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CHATRELAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("CHATRELAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("CHATRELAY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("INSTRUCTIONS"); v != "" {
		cfg.LLM.Instructions = v
	}
	if v := os.Getenv("MAIL_TO"); v != "" {
		cfg.Mail.To = v
	}
}
