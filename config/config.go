package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SeedUser is an account created (or refreshed) at startup so the server is
// usable right after boot.
type SeedUser struct {
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Avatar    string `yaml:"avatar"`
	AboutMe   string `yaml:"about_me"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	DBPath      string   `yaml:"db_path"`
	UploadsDir  string   `yaml:"uploads_dir"`
	CORSOrigins []string `yaml:"cors_origins"`
	LoginRPS    float64  `yaml:"login_rps"`
	LoginBurst  int      `yaml:"login_burst"`
}

type Config struct {
	Server ServerConfig `yaml:"server"`
	Seed   []SeedUser   `yaml:"seed"`
}

// Defaults is the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:        8080,
			DBPath:      "chat.db",
			UploadsDir:  "uploads",
			CORSOrigins: []string{"http://localhost:3000"},
			LoginRPS:    5,
			LoginBurst:  10,
		},
		Seed: []SeedUser{
			{Username: "alice", Password: "password", FirstName: "Alice", LastName: "Nguyen"},
			{Username: "bob", Password: "password", FirstName: "Bob", LastName: "Marsh"},
		},
	}
}

// Load reads the YAML config at path over the defaults, after loading a
// local .env if one exists. A missing file is fine. PORT and CHAT_DB
// environment variables override the file.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, fmt.Errorf("config: PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("CHAT_DB"); v != "" {
		cfg.Server.DBPath = v
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
