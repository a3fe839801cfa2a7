package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type SpeechConfig struct {
	// Mode is mock or exec.
	Mode           string `yaml:"mode"`
	Command        string `yaml:"command"`
	BrailleCommand string `yaml:"braille_command"`
}

type OutputConfig struct {
	SuppressionWindowMS int            `yaml:"suppression_window_ms"`
	LoggingEnabled      bool           `yaml:"logging_enabled"`
	BrailleEnabled      bool           `yaml:"braille_enabled"`
	CategoryNames       map[int]string `yaml:"category_names"`
}

// RuleSpec is a normalization rewrite rule applied at startup.
type RuleSpec struct {
	Kind            string `yaml:"kind"`
	Pattern         string `yaml:"pattern"`
	Replacement     string `yaml:"replacement"`
	CaseInsensitive bool   `yaml:"case_insensitive"`
}

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxUtterances int    `yaml:"max_utterances"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Speech      SpeechConfig    `yaml:"speech"`
	Output      OutputConfig    `yaml:"output"`
	Rules       []RuleSpec      `yaml:"rules"`
	History     HistoryConfig   `yaml:"history"`
}

func Default() Config {
	return Config{
		ServiceName: "melonaccess-bridge",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8410,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Speech: SpeechConfig{
			Mode: "mock",
		},
		Output: OutputConfig{
			SuppressionWindowMS: 500,
			LoggingEnabled:      true,
			BrailleEnabled:      true,
		},
		History: HistoryConfig{
			Path:          "./data/melonaccess-history.db",
			RetentionMode: "persistent",
			RetentionDays: 30,
			MaxUtterances: 10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "MELON_SERVICE_NAME")
	overrideString(&cfg.Environment, "MELON_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "MELON_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "MELON_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "MELON_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "MELON_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "MELON_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "MELON_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "MELON_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "MELON_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "MELON_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "MELON_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "MELON_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "MELON_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "MELON_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Speech.Mode, "MELON_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "MELON_SPEECH_COMMAND")
	overrideString(&cfg.Speech.BrailleCommand, "MELON_SPEECH_BRAILLE_COMMAND")
	overrideInt(&cfg.Output.SuppressionWindowMS, "MELON_OUTPUT_SUPPRESSION_WINDOW_MS")
	overrideBool(&cfg.Output.LoggingEnabled, "MELON_OUTPUT_LOGGING_ENABLED")
	overrideBool(&cfg.Output.BrailleEnabled, "MELON_OUTPUT_BRAILLE_ENABLED")
	overrideString(&cfg.History.Path, "MELON_HISTORY_PATH")
	overrideString(&cfg.History.RetentionMode, "MELON_HISTORY_RETENTION_MODE")
	overrideInt(&cfg.History.RetentionDays, "MELON_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxUtterances, "MELON_HISTORY_MAX_UTTERANCES")
	overrideBool(&cfg.History.VacuumOnStart, "MELON_HISTORY_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Speech.Mode {
	case "mock", "exec":
	default:
		return errors.New("speech.mode must be one of mock|exec")
	}
	if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
		return errors.New("speech.command must be set when mode=exec")
	}
	if cfg.Output.SuppressionWindowMS < 0 {
		return errors.New("output.suppression_window_ms must be >= 0")
	}
	for i, rule := range cfg.Rules {
		switch rule.Kind {
		case "literal", "pattern":
		default:
			return fmt.Errorf("rules[%d].kind must be one of literal|pattern", i)
		}
		if rule.Pattern == "" {
			return fmt.Errorf("rules[%d].pattern must not be empty", i)
		}
	}
	switch cfg.History.RetentionMode {
	case "ephemeral", "persistent":
	default:
		return errors.New("history.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.History.RetentionMode == "persistent" && cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	return nil
}
