package config

import "testing"

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DataDir != "./data" {
			t.Errorf("DataDir = %q, want ./data", cfg.DataDir)
		}
		if cfg.HTTPAddr != ":8080" {
			t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "info" {
			t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
		}
		if cfg.MinRemainingPositions != 3000 {
			t.Errorf("MinRemainingPositions = %d, want 3000", cfg.MinRemainingPositions)
		}
		if cfg.BenchmarkIntervalSeconds != 5 {
			t.Errorf("BenchmarkIntervalSeconds = %v, want 5", cfg.BenchmarkIntervalSeconds)
		}
		if cfg.TargetDurationMinutes != 10 {
			t.Errorf("TargetDurationMinutes = %d, want 10", cfg.TargetDurationMinutes)
		}
	})

	t.Run("env_vars_read", func(t *testing.T) {
		t.Setenv("MIN_REMAINING_POSITIONS", "500")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
		t.Setenv("EXTRACT_CMD", "my-extractor --fast")

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MinRemainingPositions != 500 {
			t.Errorf("MinRemainingPositions = %d, want 500", cfg.MinRemainingPositions)
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
		}
		if cfg.ExtractCmd != "my-extractor --fast" {
			t.Errorf("ExtractCmd = %q", cfg.ExtractCmd)
		}
	})

	t.Run("cli_overrides_take_priority", func(t *testing.T) {
		t.Setenv("HTTP_ADDR", ":9999")
		t.Setenv("DATA_DIR", "/env/data")
		t.Setenv("LOG_LEVEL", "warn")

		cfg, err := Load(Overrides{
			EnvFile:  "nonexistent.env",
			HTTPAddr: ":7777",
			LogLevel: "debug",
			DataDir:  "/cli/data",
		})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.HTTPAddr != ":7777" {
			t.Errorf("HTTPAddr = %q, want :7777", cfg.HTTPAddr)
		}
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
		if cfg.DataDir != "/cli/data" {
			t.Errorf("DataDir = %q, want /cli/data", cfg.DataDir)
		}
	})

	t.Run("empty_overrides_use_env", func(t *testing.T) {
		t.Setenv("DATA_DIR", "/env/data")

		cfg, err := Load(Overrides{EnvFile: "nonexistent.env"})
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.DataDir != "/env/data" {
			t.Errorf("DataDir = %q, want env value", cfg.DataDir)
		}
	})
}
