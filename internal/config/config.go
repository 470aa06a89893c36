package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"

	"chatrelay/pkg/types"
)

// Config holds every setting of the relay.
type Config struct {
	HTTP      *HTTPConfig      `json:"http" validate:"required"`
	WebSocket *WebSocketConfig `json:"websocket" validate:"required"`
	Chat      *ChatConfig      `json:"chat" validate:"required"`
	Log       *LogConfig       `json:"log" validate:"required"`
}

type HTTPConfig struct {
	Port            int           `json:"port" validate:"min=1,max=65535"`
	Host            string        `json:"host" validate:"required"`
	ReadTimeout     time.Duration `json:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" validate:"gt=0"`
}

type WebSocketConfig struct {
	PingInterval    time.Duration `json:"ping_interval" validate:"gt=0,ltfield=ReadTimeout"`
	ReadTimeout     time.Duration `json:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `json:"write_timeout" validate:"gt=0"`
	BufferSize      int           `json:"buffer_size" validate:"min=1"`
	MaxMessageBytes int64         `json:"max_message_bytes" validate:"min=1"`
	AllowedOrigins  []string      `json:"allowed_origins" validate:"min=1,dive,required"`
}

// ChatConfig bounds the chat room itself.
type ChatConfig struct {
	HistoryLimit      int           `json:"history_limit" validate:"min=1"`
	JoinHistorySize   int           `json:"join_history_size" validate:"min=0,ltefield=HistoryLimit"`
	MaxNameLength     int           `json:"max_name_length" validate:"min=1"`
	MaxMessageLength  int           `json:"max_message_length" validate:"min=1"`
	MaxFileBytes      int           `json:"max_file_bytes" validate:"min=1"`
	TypingTimeout     time.Duration `json:"typing_timeout" validate:"gt=0"`
	MessagesPerMinute int           `json:"messages_per_minute" validate:"min=0"`
	SweepInterval     time.Duration `json:"sweep_interval" validate:"gt=0"`
}

type LogConfig struct {
	Level string `json:"level" validate:"oneof=DEBUG INFO WARN ERROR debug info warn error"`
}

// DefaultConfig returns the settings used when nothing else is configured.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			PingInterval:    30 * time.Second,
			ReadTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
			BufferSize:      256,
			MaxMessageBytes: 2 << 20,
			AllowedOrigins:  []string{"*"},
		},
		Chat: &ChatConfig{
			HistoryLimit:      200,
			JoinHistorySize:   50,
			MaxNameLength:     50,
			MaxMessageLength:  2000,
			MaxFileBytes:      1 << 20,
			TypingTimeout:     5 * time.Second,
			MessagesPerMinute: 100,
			SweepInterval:     time.Second,
		},
		Log: &LogConfig{
			Level: "INFO",
		},
	}
}

// Validate checks every section against its constraints.
func (c *Config) Validate() error {
	if err := types.Validator().Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			first := fieldErrs[0]
			return fmt.Errorf("%w: %s failed on %q", ErrInvalidConfig, first.Namespace(), first.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// envConfig mirrors the CHATRELAY_* variables. Unset variables stay nil and
// leave the underlying value alone.
type envConfig struct {
	HTTPPort            *int           `env:"CHATRELAY_HTTP_PORT"`
	HTTPHost            *string        `env:"CHATRELAY_HTTP_HOST"`
	HTTPReadTimeout     *time.Duration `env:"CHATRELAY_HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout    *time.Duration `env:"CHATRELAY_HTTP_WRITE_TIMEOUT"`
	HTTPShutdownTimeout *time.Duration `env:"CHATRELAY_HTTP_SHUTDOWN_TIMEOUT"`

	WSPingInterval    *time.Duration `env:"CHATRELAY_WEBSOCKET_PING_INTERVAL"`
	WSReadTimeout     *time.Duration `env:"CHATRELAY_WEBSOCKET_READ_TIMEOUT"`
	WSWriteTimeout    *time.Duration `env:"CHATRELAY_WEBSOCKET_WRITE_TIMEOUT"`
	WSBufferSize      *int           `env:"CHATRELAY_WEBSOCKET_BUFFER_SIZE"`
	WSMaxMessageBytes *int64         `env:"CHATRELAY_WEBSOCKET_MAX_MESSAGE_BYTES"`
	WSAllowedOrigins  *string        `env:"CHATRELAY_WEBSOCKET_ALLOWED_ORIGINS"`

	ChatHistoryLimit      *int           `env:"CHATRELAY_CHAT_HISTORY_LIMIT"`
	ChatJoinHistorySize   *int           `env:"CHATRELAY_CHAT_JOIN_HISTORY_SIZE"`
	ChatMaxNameLength     *int           `env:"CHATRELAY_CHAT_MAX_NAME_LENGTH"`
	ChatMaxMessageLength  *int           `env:"CHATRELAY_CHAT_MAX_MESSAGE_LENGTH"`
	ChatMaxFileBytes      *int           `env:"CHATRELAY_CHAT_MAX_FILE_BYTES"`
	ChatTypingTimeout     *time.Duration `env:"CHATRELAY_CHAT_TYPING_TIMEOUT"`
	ChatMessagesPerMinute *int           `env:"CHATRELAY_CHAT_MESSAGES_PER_MINUTE"`
	ChatSweepInterval     *time.Duration `env:"CHATRELAY_CHAT_SWEEP_INTERVAL"`

	LogLevel *string `env:"CHATRELAY_LOG_LEVEL"`
}

// LoadFromEnv overlays CHATRELAY_* environment variables on the defaults.
func LoadFromEnv() (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

func applyEnv(config *Config) error {
	var e envConfig
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setIf(&config.HTTP.Port, e.HTTPPort)
	setIf(&config.HTTP.Host, e.HTTPHost)
	setIf(&config.HTTP.ReadTimeout, e.HTTPReadTimeout)
	setIf(&config.HTTP.WriteTimeout, e.HTTPWriteTimeout)
	setIf(&config.HTTP.ShutdownTimeout, e.HTTPShutdownTimeout)

	setIf(&config.WebSocket.PingInterval, e.WSPingInterval)
	setIf(&config.WebSocket.ReadTimeout, e.WSReadTimeout)
	setIf(&config.WebSocket.WriteTimeout, e.WSWriteTimeout)
	setIf(&config.WebSocket.BufferSize, e.WSBufferSize)
	setIf(&config.WebSocket.MaxMessageBytes, e.WSMaxMessageBytes)
	if e.WSAllowedOrigins != nil {
		config.WebSocket.AllowedOrigins = splitList(*e.WSAllowedOrigins)
	}

	setIf(&config.Chat.HistoryLimit, e.ChatHistoryLimit)
	setIf(&config.Chat.JoinHistorySize, e.ChatJoinHistorySize)
	setIf(&config.Chat.MaxNameLength, e.ChatMaxNameLength)
	setIf(&config.Chat.MaxMessageLength, e.ChatMaxMessageLength)
	setIf(&config.Chat.MaxFileBytes, e.ChatMaxFileBytes)
	setIf(&config.Chat.TypingTimeout, e.ChatTypingTimeout)
	setIf(&config.Chat.MessagesPerMinute, e.ChatMessagesPerMinute)
	setIf(&config.Chat.SweepInterval, e.ChatSweepInterval)

	setIf(&config.Log.Level, e.LogLevel)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// ConfigFile is the JSON layout of a configuration file. Durations are
// strings such as "30s".
type ConfigFile struct {
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Chat      *ChatConfigFile      `json:"chat"`
	Log       *LogConfig           `json:"log"`
}

type HTTPConfigFile struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
}

type WebSocketConfigFile struct {
	PingInterval    string   `json:"ping_interval"`
	ReadTimeout     string   `json:"read_timeout"`
	WriteTimeout    string   `json:"write_timeout"`
	BufferSize      int      `json:"buffer_size"`
	MaxMessageBytes int64    `json:"max_message_bytes"`
	AllowedOrigins  []string `json:"allowed_origins"`
}

type ChatConfigFile struct {
	HistoryLimit      int    `json:"history_limit"`
	JoinHistorySize   *int   `json:"join_history_size"`
	MaxNameLength     int    `json:"max_name_length"`
	MaxMessageLength  int    `json:"max_message_length"`
	MaxFileBytes      int    `json:"max_file_bytes"`
	TypingTimeout     string `json:"typing_timeout"`
	MessagesPerMinute *int   `json:"messages_per_minute"`
	SweepInterval     string `json:"sweep_interval"`
}

// LoadFromFile reads a JSON configuration file over the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var errs []error
	duration := func(dst *time.Duration, raw, field string) {
		if raw == "" {
			return
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}
	positive := func(dst *int, v int) {
		if v > 0 {
			*dst = v
		}
	}

	if f := file.HTTP; f != nil {
		positive(&config.HTTP.Port, f.Port)
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		duration(&config.HTTP.ReadTimeout, f.ReadTimeout, "http.read_timeout")
		duration(&config.HTTP.WriteTimeout, f.WriteTimeout, "http.write_timeout")
		duration(&config.HTTP.ShutdownTimeout, f.ShutdownTimeout, "http.shutdown_timeout")
	}

	if f := file.WebSocket; f != nil {
		duration(&config.WebSocket.PingInterval, f.PingInterval, "websocket.ping_interval")
		duration(&config.WebSocket.ReadTimeout, f.ReadTimeout, "websocket.read_timeout")
		duration(&config.WebSocket.WriteTimeout, f.WriteTimeout, "websocket.write_timeout")
		positive(&config.WebSocket.BufferSize, f.BufferSize)
		if f.MaxMessageBytes > 0 {
			config.WebSocket.MaxMessageBytes = f.MaxMessageBytes
		}
		if len(f.AllowedOrigins) > 0 {
			config.WebSocket.AllowedOrigins = f.AllowedOrigins
		}
	}

	if f := file.Chat; f != nil {
		positive(&config.Chat.HistoryLimit, f.HistoryLimit)
		setIf(&config.Chat.JoinHistorySize, f.JoinHistorySize)
		positive(&config.Chat.MaxNameLength, f.MaxNameLength)
		positive(&config.Chat.MaxMessageLength, f.MaxMessageLength)
		positive(&config.Chat.MaxFileBytes, f.MaxFileBytes)
		duration(&config.Chat.TypingTimeout, f.TypingTimeout, "chat.typing_timeout")
		setIf(&config.Chat.MessagesPerMinute, f.MessagesPerMinute)
		duration(&config.Chat.SweepInterval, f.SweepInterval, "chat.sweep_interval")
	}

	if file.Log != nil && file.Log.Level != "" {
		config.Log.Level = file.Log.Level
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid durations in %s: %w", filepath, err)
	}
	return nil
}

// LoadConfigWithPrecedence builds the configuration from defaults, then the
// environment, then the file at filepath if one is given. A missing file is
// not an error.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if filepath != "" {
		if err := applyFile(config, filepath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
