package config

import (
	"os"
	"path/filepath"
	"strconv"
)

type Config struct {
	Port        int
	BindAddress string
	DataDir     string
	WorkDir     string

	// Model selection: "auto", "local", or "hosted".
	Backend       string
	SelectedModel string
	OllamaURL     string
	OpenAIBaseURL string

	// Metering limits, consumed by the usage meter.
	DailyRequestLimit int
	DailyTokenBudget  int
	DailyCostCapUSD   float64
	MeteringEnabled   bool
	AIDisabled        bool

	// Tool execution bounds.
	CommandTimeoutSeconds int
	MaxOutputBytes        int

	EncryptionKey string
}

func Load() *Config {
	cfg := &Config{
		Port:                  41890,
		BindAddress:           "127.0.0.1",
		DataDir:               resolveDataDir(),
		Backend:               "auto",
		SelectedModel:         "llama3",
		OllamaURL:             "http://127.0.0.1:11434",
		OpenAIBaseURL:         "https://api.openai.com/v1",
		DailyRequestLimit:     200,
		DailyTokenBudget:      500_000,
		DailyCostCapUSD:       10.0,
		MeteringEnabled:       true,
		AIDisabled:            false,
		CommandTimeoutSeconds: 300,
		MaxOutputBytes:        64 * 1024,
		EncryptionKey:         getEnv("HACKPILOT_ENCRYPTION_KEY", ""),
	}

	if wd, err := os.Getwd(); err == nil {
		cfg.WorkDir = wd
	} else {
		cfg.WorkDir = "."
	}

	if p := getEnv("HACKPILOT_PORT", ""); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	if b := getEnv("HACKPILOT_BIND", ""); b != "" {
		cfg.BindAddress = b
	}
	if d := getEnv("HACKPILOT_DATA_DIR", ""); d != "" {
		cfg.DataDir = d
	}
	if w := getEnv("HACKPILOT_WORK_DIR", ""); w != "" {
		cfg.WorkDir = w
	}
	if b := getEnv("HACKPILOT_BACKEND", ""); b != "" {
		cfg.Backend = b
	}
	if m := getEnv("HACKPILOT_MODEL", ""); m != "" {
		cfg.SelectedModel = m
	}
	if u := getEnv("HACKPILOT_OLLAMA_URL", ""); u != "" {
		cfg.OllamaURL = u
	}
	if u := getEnv("HACKPILOT_OPENAI_BASE_URL", ""); u != "" {
		cfg.OpenAIBaseURL = u
	}
	if v := getEnv("HACKPILOT_DAILY_REQUEST_LIMIT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DailyRequestLimit = n
		}
	}
	if v := getEnv("HACKPILOT_DAILY_TOKEN_BUDGET", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DailyTokenBudget = n
		}
	}
	if v := getEnv("HACKPILOT_DAILY_COST_CAP_USD", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DailyCostCapUSD = f
		}
	}
	if v := getEnv("HACKPILOT_METERING", ""); v != "" {
		cfg.MeteringEnabled = v != "false" && v != "0"
	}
	if v := getEnv("HACKPILOT_AI_DISABLED", ""); v != "" {
		cfg.AIDisabled = v == "true" || v == "1"
	}
	if v := getEnv("HACKPILOT_COMMAND_TIMEOUT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CommandTimeoutSeconds = n
		}
	}
	if v := getEnv("HACKPILOT_MAX_OUTPUT_BYTES", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxOutputBytes = n
		}
	}

	return cfg
}

func resolveDataDir() string {
	// Resolve data dir relative to the executable, not the CWD
	exe, err := os.Executable()
	if err != nil {
		return "./data"
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "./data"
	}
	return filepath.Join(filepath.Dir(exe), "data")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
