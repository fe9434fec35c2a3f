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
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
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
	Mode          string `yaml:"mode"` // mock, exec
	Command       string `yaml:"command"`
	MockMSPerRune int    `yaml:"mock_ms_per_rune"`
}

// PlaybackConfig carries the pacing constants of the drill cycle.
type PlaybackConfig struct {
	MinPauseMS       int      `yaml:"min_pause_ms"`
	GapMS            int      `yaml:"gap_ms"`
	ReadingMSPerChar int      `yaml:"reading_ms_per_char"`
	MutedNativeLangs []string `yaml:"muted_native_langs"`
}

type SessionConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DefaultLevel string `yaml:"default_level"`
	TargetCount  int    `yaml:"target_count"`
}

type ResumeConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxLessons    int    `yaml:"max_lessons"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	RuntimeName string          `yaml:"runtime_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Speech      SpeechConfig    `yaml:"speech"`
	Playback    PlaybackConfig  `yaml:"playback"`
	Session     SessionConfig   `yaml:"session"`
	Resume      ResumeConfig    `yaml:"resume"`
}

func Default() Config {
	return Config{
		RuntimeName: "drill-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Speech: SpeechConfig{
			Mode:          "mock",
			MockMSPerRune: 50,
		},
		Playback: PlaybackConfig{
			MinPauseMS:       1500,
			GapMS:            800,
			ReadingMSPerChar: 60,
			MutedNativeLangs: []string{"tr"},
		},
		Session: SessionConfig{
			Enabled:      true,
			DefaultLevel: "B1",
			TargetCount:  4,
		},
		Resume: ResumeConfig{
			Path:          "./data/drill-progress.db",
			RetentionMode: "persistent",
			RetentionDays: 90,
			MaxLessons:    10000,
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
	overrideString(&cfg.RuntimeName, "DRILL_RUNTIME_NAME")
	overrideString(&cfg.Environment, "DRILL_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "DRILL_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "DRILL_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "DRILL_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "DRILL_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "DRILL_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "DRILL_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "DRILL_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "DRILL_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "DRILL_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "DRILL_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "DRILL_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "DRILL_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "DRILL_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "DRILL_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Speech.Mode, "DRILL_SPEECH_MODE")
	overrideString(&cfg.Speech.Command, "DRILL_SPEECH_COMMAND")
	overrideInt(&cfg.Speech.MockMSPerRune, "DRILL_SPEECH_MOCK_MS_PER_RUNE")
	overrideInt(&cfg.Playback.MinPauseMS, "DRILL_PLAYBACK_MIN_PAUSE_MS")
	overrideInt(&cfg.Playback.GapMS, "DRILL_PLAYBACK_GAP_MS")
	overrideInt(&cfg.Playback.ReadingMSPerChar, "DRILL_PLAYBACK_READING_MS_PER_CHAR")
	overrideStringSlice(&cfg.Playback.MutedNativeLangs, "DRILL_PLAYBACK_MUTED_NATIVE_LANGS")
	overrideBool(&cfg.Session.Enabled, "DRILL_SESSION_ENABLED")
	overrideString(&cfg.Session.DefaultLevel, "DRILL_SESSION_DEFAULT_LEVEL")
	overrideInt(&cfg.Session.TargetCount, "DRILL_SESSION_TARGET_COUNT")
	overrideString(&cfg.Resume.Path, "DRILL_RESUME_PATH")
	overrideString(&cfg.Resume.RetentionMode, "DRILL_RESUME_RETENTION_MODE")
	overrideInt(&cfg.Resume.RetentionDays, "DRILL_RESUME_RETENTION_DAYS")
	overrideInt(&cfg.Resume.MaxLessons, "DRILL_RESUME_MAX_LESSONS")
	overrideBool(&cfg.Resume.VacuumOnStart, "DRILL_RESUME_VACUUM_ON_START")
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
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
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
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	switch cfg.Speech.Mode {
	case "mock", "exec":
	default:
		return errors.New("speech.mode must be one of mock|exec")
	}
	if cfg.Speech.Mode == "exec" && cfg.Speech.Command == "" {
		return errors.New("speech.command must be set when mode=exec")
	}
	if cfg.Playback.MinPauseMS <= 0 {
		return errors.New("playback.min_pause_ms must be positive")
	}
	if cfg.Playback.GapMS < 0 {
		return errors.New("playback.gap_ms must be >= 0")
	}
	if cfg.Playback.ReadingMSPerChar <= 0 {
		return errors.New("playback.reading_ms_per_char must be positive")
	}
	if cfg.Session.Enabled {
		if cfg.Session.DefaultLevel == "" {
			return errors.New("session.default_level must not be empty when the session service is enabled")
		}
		if cfg.Session.TargetCount <= 0 {
			return errors.New("session.target_count must be >= 1")
		}
	}
	if cfg.Resume.Path == "" {
		return errors.New("resume.path must not be empty")
	}
	switch cfg.Resume.RetentionMode {
	case "ephemeral", "persistent":
		// ok
	default:
		return errors.New("resume.retention_mode must be one of ephemeral|persistent")
	}
	if cfg.Resume.RetentionDays < 0 {
		return errors.New("resume.retention_days must be >= 0")
	}
	return nil
}
