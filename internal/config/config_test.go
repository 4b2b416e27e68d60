package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.StoreBackend != StoreMemory {
		t.Errorf("StoreBackend = %q, want %q", cfg.StoreBackend, StoreMemory)
	}
	if cfg.MaxUploadSizeBytes != 10*1024*1024 {
		t.Errorf("MaxUploadSizeBytes = %d, want 10MB", cfg.MaxUploadSizeBytes)
	}
	if cfg.MaxPromptChars != 30000 {
		t.Errorf("MaxPromptChars = %d, want 30000", cfg.MaxPromptChars)
	}
	if cfg.ListLimit != 50 {
		t.Errorf("ListLimit = %d, want 50", cfg.ListLimit)
	}
	if cfg.RunTimeout != 5*time.Minute {
		t.Errorf("RunTimeout = %v, want 5m", cfg.RunTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "SQLite")
	t.Setenv("WORKERS", "8")
	t.Setenv("MODEL_CALL_TIMEOUT", "30s")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want 9090", cfg.Port)
	}
	if cfg.StoreBackend != StoreSQLite {
		t.Errorf("StoreBackend = %q, want sqlite", cfg.StoreBackend)
	}
	if cfg.Workers != 8 {
		t.Errorf("Workers = %d, want 8", cfg.Workers)
	}
	if cfg.ModelCallTimeout != 30*time.Second {
		t.Errorf("ModelCallTimeout = %v, want 30s", cfg.ModelCallTimeout)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON = false, want true")
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{
			name:    "invalid integer",
			env:     map[string]string{"WORKERS": "many"},
			wantMsg: "WORKERS",
		},
		{
			name:    "invalid duration",
			env:     map[string]string{"RUN_TIMEOUT": "soon"},
			wantMsg: "RUN_TIMEOUT",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"STORE_BACKEND": "mongo"},
			wantMsg: "STORE_BACKEND",
		},
		{
			name:    "bigquery without project",
			env:     map[string]string{"STORE_BACKEND": "bigquery"},
			wantMsg: "BIGQUERY_PROJECT",
		},
		{
			name:    "non-positive list limit",
			env:     map[string]string{"LIST_LIMIT": "0"},
			wantMsg: "LIST_LIMIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.wantMsg)
			}
		})
	}
}

func TestRequireServer(t *testing.T) {
	cfg := &Config{}
	if err := cfg.RequireServer(); err == nil {
		t.Error("expected error without GEMINI_API_KEY")
	}

	cfg.GeminiAPIKey = "key"
	cfg.JWTSecret = "short"
	if err := cfg.RequireServer(); err == nil {
		t.Error("expected error for short JWT_SECRET")
	}

	cfg.JWTSecret = "a-long-enough-test-secret"
	if err := cfg.RequireServer(); err != nil {
		t.Errorf("RequireServer() error = %v", err)
	}
}
