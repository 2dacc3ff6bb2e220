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

type HistoryConfig struct {
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type QueueConfig struct {
	MaxTextLen    int `yaml:"max_text_len"`
	PlayTimeoutMS int `yaml:"play_timeout_ms"`
}

type EngineConfig struct {
	Mode       string `yaml:"mode"` // mock, exec
	Command    string `yaml:"command"`
	SampleRate int    `yaml:"sample_rate"`
	Channels   int    `yaml:"channels"`
}

type AudioConfig struct {
	Sink        string `yaml:"sink"` // device, wav, null
	WavDir      string `yaml:"wav_dir"`
	BufferMS    int    `yaml:"buffer_ms"`
	DrainWaitMS int    `yaml:"drain_wait_ms"`
}

type EventsConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	DataDir     string          `yaml:"data_dir"`
	HTTP        HTTPConfig      `yaml:"http"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	History     HistoryConfig   `yaml:"history"`
	Queue       QueueConfig     `yaml:"queue"`
	Engine      EngineConfig    `yaml:"engine"`
	Audio       AudioConfig     `yaml:"audio"`
	Events      EventsConfig    `yaml:"events"`
}

func Default() Config {
	return Config{
		ServiceName: "speakupd",
		Environment: "development",
		DataDir:     "./data",
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 7849,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		History: HistoryConfig{
			Path:          "./data/history.db",
			RetentionDays: 30,
		},
		Queue: QueueConfig{
			MaxTextLen:    2000,
			PlayTimeoutMS: 120000,
		},
		Engine: EngineConfig{
			Mode:       "mock",
			SampleRate: 22050,
			Channels:   1,
		},
		Audio: AudioConfig{
			Sink:        "device",
			WavDir:      "./data/audio",
			BufferMS:    50,
			DrainWaitMS: 150,
		},
		Events: EventsConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
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
	overrideString(&cfg.ServiceName, "SPEAKUP_SERVICE_NAME")
	overrideString(&cfg.Environment, "SPEAKUP_ENVIRONMENT")
	overrideString(&cfg.DataDir, "SPEAKUP_DATA_DIR")
	overrideString(&cfg.HTTP.Bind, "SPEAKUP_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SPEAKUP_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "SPEAKUP_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SPEAKUP_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SPEAKUP_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.History.Path, "SPEAKUP_HISTORY_PATH")
	overrideInt(&cfg.History.RetentionDays, "SPEAKUP_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.Queue.MaxTextLen, "SPEAKUP_QUEUE_MAX_TEXT_LEN")
	overrideInt(&cfg.Queue.PlayTimeoutMS, "SPEAKUP_QUEUE_PLAY_TIMEOUT_MS")
	overrideString(&cfg.Engine.Mode, "SPEAKUP_ENGINE_MODE")
	overrideString(&cfg.Engine.Command, "SPEAKUP_ENGINE_COMMAND")
	overrideInt(&cfg.Engine.SampleRate, "SPEAKUP_ENGINE_SAMPLE_RATE")
	overrideInt(&cfg.Engine.Channels, "SPEAKUP_ENGINE_CHANNELS")
	overrideString(&cfg.Audio.Sink, "SPEAKUP_AUDIO_SINK")
	overrideString(&cfg.Audio.WavDir, "SPEAKUP_AUDIO_WAV_DIR")
	overrideInt(&cfg.Audio.BufferMS, "SPEAKUP_AUDIO_BUFFER_MS")
	overrideInt(&cfg.Audio.DrainWaitMS, "SPEAKUP_AUDIO_DRAIN_WAIT_MS")
	overrideBool(&cfg.Events.Enabled, "SPEAKUP_EVENTS_ENABLED")
	overrideBool(&cfg.Events.Embedded, "SPEAKUP_EVENTS_EMBEDDED")
	overrideInt(&cfg.Events.Port, "SPEAKUP_EVENTS_PORT")
	overrideStringSlice(&cfg.Events.Servers, "SPEAKUP_EVENTS_SERVERS")
	overrideString(&cfg.Events.Username, "SPEAKUP_EVENTS_USERNAME")
	overrideString(&cfg.Events.Password, "SPEAKUP_EVENTS_PASSWORD")
	overrideString(&cfg.Events.Token, "SPEAKUP_EVENTS_TOKEN")
	overrideInt(&cfg.Events.ConnectTimeout, "SPEAKUP_EVENTS_CONNECT_TIMEOUT_MS")
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
	if cfg.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.History.Path == "" {
		return errors.New("history.path must not be empty")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.Queue.MaxTextLen <= 0 {
		return errors.New("queue.max_text_len must be positive")
	}
	if cfg.Queue.PlayTimeoutMS <= 0 {
		return errors.New("queue.play_timeout_ms must be positive")
	}
	switch cfg.Engine.Mode {
	case "mock", "exec":
	default:
		return errors.New("engine.mode must be one of mock|exec")
	}
	if cfg.Engine.Mode == "exec" && cfg.Engine.Command == "" {
		return errors.New("engine.command must be set when mode=exec")
	}
	if cfg.Engine.SampleRate <= 0 {
		return errors.New("engine.sample_rate must be positive")
	}
	if cfg.Engine.Channels <= 0 {
		return errors.New("engine.channels must be positive")
	}
	switch cfg.Audio.Sink {
	case "device", "wav", "null":
	default:
		return errors.New("audio.sink must be one of device|wav|null")
	}
	if cfg.Audio.Sink == "wav" && cfg.Audio.WavDir == "" {
		return errors.New("audio.wav_dir must be set when sink=wav")
	}
	if cfg.Audio.BufferMS <= 0 {
		return errors.New("audio.buffer_ms must be positive")
	}
	if cfg.Events.Enabled {
		if cfg.Events.Embedded {
			if cfg.Events.Port <= 0 || cfg.Events.Port > 65535 {
				return errors.New("events.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Events.Servers) == 0 {
			return errors.New("events.servers must not be empty when embedded mode is disabled")
		}
	}
	return nil
}
