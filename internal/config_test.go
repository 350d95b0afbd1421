package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestVectorConfig_EmptyBackendDefaultsSQLite(t *testing.T) {
	cfg := VectorConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty backend should default to sqlite: %v", err)
	}
	if cfg.Backend != VectorBackendSQLite {
		t.Errorf("backend = %q, want %q", cfg.Backend, VectorBackendSQLite)
	}
}

func TestVectorConfig_InvalidBackend(t *testing.T) {
	cfg := VectorConfig{Backend: "redis"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid backend should fail validation")
	}
}

func TestVectorConfig_NegativeDimensions(t *testing.T) {
	cfg := VectorConfig{Backend: VectorBackendMemory, Dimensions: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative dimensions should fail validation")
	}
}

func TestWatcherConfig_NegativeDebounce(t *testing.T) {
	cfg := WatcherConfig{Enabled: true, Debounce: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative debounce should fail validation")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q, want %q", cfg.App.HTTP.Address(), ":8080")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestFullConfig_StateDirRequired(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.State.Dir = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty state dir should fail validation")
	}
}
