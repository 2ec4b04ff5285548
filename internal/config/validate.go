package config

import (
	"fmt"
	"net/mail"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, valid []string) {
		if value != "" && !slices.Contains(valid, value) {
			add(path, "must be one of %v, got %q", valid, value)
		}
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, []string{"auto", "lan", "loopback", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}

	// Model validation
	validProviders := []string{"openai", "claude", "ollama"}
	checkProvider := func(path string, p ProviderConfig) {
		oneOf(path+".provider", p.Provider, validProviders)
		if p.Provider != "ollama" && p.APIKey == "" && p.Endpoint == "" {
			add(path+".apiKey", "required for provider %q", p.Provider)
		}
		if p.Model == "" {
			add(path+".model", "required")
		}
	}
	checkProvider("llm", cfg.LLM.ProviderConfig)
	for i, fb := range cfg.LLM.Fallbacks {
		checkProvider(fmt.Sprintf("llm.fallbacks.%d", i), fb)
	}
	if cfg.LLM.TimeoutSeconds < 0 {
		add("llm.timeoutSeconds", "must not be negative")
	}
	if t := cfg.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		add("llm.temperature", "must be 0-2, got %v", *t)
	}

	// Store validation
	oneOf("store.driver", cfg.Store.Driver, []string{"sqlite", "file", "memory"})

	// Remote validation
	oneOf("remote.driver", cfg.Remote.Driver, []string{"drive", "dir", "none"})
	switch cfg.Remote.Driver {
	case "drive":
		if cfg.Remote.FolderID == "" {
			add("remote.folderId", "required for the drive driver")
		}
	case "dir":
		if cfg.Remote.Dir == "" {
			add("remote.dir", "required for the dir driver")
		}
	}

	// Mail validation
	oneOf("mail.driver", cfg.Mail.Driver, []string{"gmail", "smtp", "none"})
	if cfg.Mail.Driver == "gmail" || cfg.Mail.Driver == "smtp" {
		if cfg.Mail.To == "" {
			add("mail.to", "recipient required when mail is enabled")
		} else if _, err := mail.ParseAddress(cfg.Mail.To); err != nil {
			add("mail.to", "invalid address %q", cfg.Mail.To)
		}
	}
	if cfg.Mail.Driver == "smtp" {
		if cfg.Mail.SMTP.Host == "" {
			add("mail.smtp.host", "required for the smtp driver")
		}
		if cfg.Mail.SMTP.Port <= 0 || cfg.Mail.SMTP.Port > 65535 {
			add("mail.smtp.port", "port must be 1-65535, got %d", cfg.Mail.SMTP.Port)
		}
		if cfg.Mail.From == "" {
			add("mail.from", "required for the smtp driver")
		}
	}

	// Delivery validation
	if cfg.Delivery.NotifyDelayMinutes < 0 {
		add("delivery.notifyDelayMinutes", "must not be negative")
	}
	if cfg.Delivery.UploadTimeoutSeconds < 0 {
		add("delivery.uploadTimeoutSeconds", "must not be negative")
	}
	if cfg.Delivery.MailTimeoutSeconds < 0 {
		add("delivery.mailTimeoutSeconds", "must not be negative")
	}

	// Render validation
	oneOf("render.format", cfg.Render.Format, []string{"pdf", "markdown", "html"})
	oneOf("render.locale", cfg.Render.Locale, []string{"hu", "en"})

	// Logging validation
	oneOf("logging.level", cfg.Logging.Level, []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	return issues
}
