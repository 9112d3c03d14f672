package config

import (
	"os"
	"testing"
	"time"
)

func TestConfig_SetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Store.Backend != "filesystem" {
		t.Errorf("Store.Backend = %v, want filesystem", cfg.Store.Backend)
	}
	if cfg.Store.DBPath != "stepflow.db" {
		t.Errorf("Store.DBPath = %v, want stepflow.db", cfg.Store.DBPath)
	}
	if cfg.Content.DiscoveryMethod != "autodiscover" {
		t.Errorf("Content.DiscoveryMethod = %v, want autodiscover", cfg.Content.DiscoveryMethod)
	}
	if cfg.Token.TTL != 24*time.Hour {
		t.Errorf("Token.TTL = %v, want 24h", cfg.Token.TTL)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %v, want info", cfg.Logger.Level)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "defaulted config is valid",
			cfg:     Config{},
			wantErr: false,
		},
		{
			name: "unknown backend rejected",
			cfg: Config{
				Store: StoreConfig{Backend: "s3"},
			},
			wantErr: true,
		},
		{
			name: "unsupported database backend rejected",
			cfg: Config{
				Store: StoreConfig{Backend: "database"},
			},
			wantErr: true,
		},
		{
			name: "negative token ttl rejected",
			cfg: Config{
				Token: TokenConfig{TTL: -time.Hour},
			},
			wantErr: true,
		},
		{
			name: "unknown discovery method rejected",
			cfg: Config{
				Content: ContentConfig{DiscoveryMethod: "poll"},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			wantBackend := cfg.Store.Backend
			wantDiscovery := cfg.Content.DiscoveryMethod
			cfg.SetDefaults()
			if wantBackend != "" {
				cfg.Store.Backend = wantBackend
			}
			if wantDiscovery != "" {
				cfg.Content.DiscoveryMethod = wantDiscovery
			}
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	if err := os.WriteFile(path, []byte("store:\n  db_path: from-file.db\n"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	os.Setenv("STEPFLOW_DB_PATH", "from-env.db")
	defer os.Unsetenv("STEPFLOW_DB_PATH")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DBPath != "from-env.db" {
		t.Errorf("Store.DBPath = %v, want from-env.db (env should win over file)", cfg.Store.DBPath)
	}
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Store.DBPath != "stepflow.db" {
		t.Errorf("Store.DBPath = %v, want stepflow.db", cfg.Store.DBPath)
	}
}

func TestLoad_TokenTTLEnvOverride(t *testing.T) {
	os.Setenv("STEPFLOW_TOKEN_TTL", "1h")
	defer os.Unsetenv("STEPFLOW_TOKEN_TTL")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Token.TTL != time.Hour {
		t.Errorf("Token.TTL = %v, want 1h", cfg.Token.TTL)
	}
}
