package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port:           5000,
			Bind:           "loopback",
			AllowedOrigins: []string{"*"},
		},
		LLM: LLMConfig{
			ProviderConfig: ProviderConfig{Provider: "openai"},
			TimeoutSeconds: 300,
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Remote: RemoteConfig{
			Driver: "none",
		},
		Mail: MailConfig{
			Driver:  "none",
			Subject: "Conversation {session}",
			SMTP:    SMTPConfig{Port: 587},
		},
		Delivery: DeliveryConfig{
			NotifyDelayMinutes:   10,
			UploadTimeoutSeconds: 60,
			MailTimeoutSeconds:   60,
			NamePrefix:           "conversation_",
		},
		Render: RenderConfig{
			Format: "pdf",
			Locale: "hu",
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// NotifyDelay returns the quiet period before a notification fires.
func (d DeliveryConfig) NotifyDelay() time.Duration {
	return time.Duration(d.NotifyDelayMinutes) * time.Minute
}

// UploadTimeout bounds a single remote upload.
func (d DeliveryConfig) UploadTimeout() time.Duration {
	return time.Duration(d.UploadTimeoutSeconds) * time.Second
}

// MailTimeout bounds a single mail send.
func (d DeliveryConfig) MailTimeout() time.Duration {
	return time.Duration(d.MailTimeoutSeconds) * time.Second
}

// Timeout bounds a whole model stream.
func (l LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}
