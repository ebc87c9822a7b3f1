package config

import (
	"encoding/json"
	"os"
	"strings"

	"log/slog"
)

// Config содержит настройки для сервера и дашборда.
type Config struct {
	ServerAddr string `json:"server_addr"`  // адрес HTTP-сервера (например, ":8080")
	WSPath     string `json:"ws_path"`      // путь WebSocket (например, "/ws")
	DBPath     string `json:"db_path"`      // путь к SQLite БД (например, "eventually.db")
	JWTSecret  string `json:"jwt_secret"`   // секрет подписи сессионных токенов
	LogLevel   string `json:"log_level"`    // уровень логирования (например, "INFO")
	APIBaseURL string `json:"api_base_url"` // базовый URL REST API для дашборда (например, "http://localhost:8080")
	WSURL      string `json:"ws_url"`       // URL push-канала для дашборда (например, "ws://localhost:8080/ws")
}

// Level разбирает LogLevel в уровень slog. Регистр не важен;
// нераспознанное или пустое значение даёт Info.
func (c *Config) Level() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoadConfig загружает конфигурацию из указанного JSON-файла.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &Config{}
	decoder := json.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
