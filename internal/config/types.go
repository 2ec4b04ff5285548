package config

// Config is the root configuration for the chat relay.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Remote   RemoteConfig   `yaml:"remote,omitempty"`
	Mail     MailConfig     `yaml:"mail,omitempty"`
	Delivery DeliveryConfig `yaml:"delivery,omitempty"`
	Render   RenderConfig   `yaml:"render,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket route layer.
type GatewayConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	TLS            GatewayTLS `yaml:"tls,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
	StaticDir      string     `yaml:"staticDir,omitempty"` // optional chat page served at /
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// ProviderConfig selects and authenticates one model provider.
type ProviderConfig struct {
	Provider string `yaml:"provider,omitempty"` // "openai" | "claude" | "ollama"
	APIKey   string `yaml:"apiKey,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty"` // custom base URL (OpenAI-compatible servers, Ollama host)
}

// LLMConfig configures the upstream model stream.
type LLMConfig struct {
	ProviderConfig `yaml:",inline"`
	Instructions   string           `yaml:"instructions,omitempty"` // system instructions, passed verbatim
	MaxTokens      int              `yaml:"maxTokens,omitempty"`
	Temperature    *float64         `yaml:"temperature,omitempty"`
	TimeoutSeconds int              `yaml:"timeoutSeconds,omitempty"`
	Fallbacks      []ProviderConfig `yaml:"fallbacks,omitempty"`
}

// StoreConfig selects the durable transcript store.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"` // "sqlite" | "file" | "memory"
	Path   string `yaml:"path,omitempty"`   // database file or directory; defaults under the data dir
}

// RemoteConfig selects where transcript and document artifacts are uploaded.
type RemoteConfig struct {
	Driver          string `yaml:"driver,omitempty"` // "drive" | "dir" | "none"
	FolderID        string `yaml:"folderId,omitempty"`
	Dir             string `yaml:"dir,omitempty"`
	CredentialsFile string `yaml:"credentialsFile,omitempty"`
	TokenFile       string `yaml:"tokenFile,omitempty"`
}

// MailConfig selects the notification transport.
type MailConfig struct {
	Driver          string     `yaml:"driver,omitempty"` // "gmail" | "smtp" | "none"
	To              string     `yaml:"to,omitempty"`
	From            string     `yaml:"from,omitempty"`
	Subject         string     `yaml:"subject,omitempty"`
	SMTP            SMTPConfig `yaml:"smtp,omitempty"`
	CredentialsFile string     `yaml:"credentialsFile,omitempty"`
	TokenFile       string     `yaml:"tokenFile,omitempty"`
}

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host,omitempty"`
	Port     int    `yaml:"port,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
}

// DeliveryConfig tunes the post-turn delivery cycle.
type DeliveryConfig struct {
	NotifyDelayMinutes   int    `yaml:"notifyDelayMinutes,omitempty"`
	UploadTimeoutSeconds int    `yaml:"uploadTimeoutSeconds,omitempty"`
	MailTimeoutSeconds   int    `yaml:"mailTimeoutSeconds,omitempty"`
	NamePrefix           string `yaml:"namePrefix,omitempty"`
}

// RenderConfig controls the rendered transcript document.
type RenderConfig struct {
	Format string `yaml:"format,omitempty"` // "pdf" | "markdown" | "html"
	Locale string `yaml:"locale,omitempty"` // "hu" | "en"
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
