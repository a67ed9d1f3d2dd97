package config

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_PORT", "")
	t.Setenv("AVERAGE_SERVICE_MINUTES", "")
	t.Setenv("SERVICE_TIME_MODE", "")
	t.Setenv("STORE_BACKEND", "")

	cfg := Load()
	if cfg.Port != "8080" || cfg.AverageServiceTime != 15*time.Minute || cfg.LearnedServiceTime {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StoreBackend != "redis" || cfg.NearTurnThreshold != 3 || cfg.StaffPIN != "0000" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("AVERAGE_SERVICE_MINUTES", "8")
	t.Setenv("SERVICE_TIME_MODE", "Learned")
	t.Setenv("STORE_BACKEND", "MEMORY")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("CONNECTIVITY_INTERVAL_SECONDS", "2")

	cfg := Load()
	if cfg.AverageServiceTime != 8*time.Minute || !cfg.LearnedServiceTime || cfg.StoreBackend != "memory" {
		t.Fatalf("overrides not applied %+v", cfg)
	}
	if cfg.RedisDB != 0 || cfg.ConnectivityInterval != 2*time.Second {
		t.Fatalf("numeric parsing wrong %+v", cfg)
	}
}

func TestGetBool(t *testing.T) {
	t.Setenv("FLAG_A", "true")
	t.Setenv("FLAG_B", "nope")
	if !GetBool("FLAG_A", false) || !GetBool("FLAG_B", true) || GetBool("FLAG_MISSING", false) {
		t.Fatal("GetBool mismatch")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("s3cret", "desk-1", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	claims, err := ValidateToken("s3cret", token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.Role != RoleStaff || claims.Station != "desk-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if _, err := ValidateToken("other", token); err == nil {
		t.Fatal("token accepted with wrong secret")
	}
	if _, err := GenerateToken("", "x", time.Hour); err != ErrMissingSecret {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestPINChecker(t *testing.T) {
	checker, err := NewPINChecker("1234", "")
	if err != nil {
		t.Fatalf("checker: %v", err)
	}
	if !checker.Check("1234") || checker.Check("0000") || checker.Check("12345") {
		t.Fatal("plain PIN check mismatch")
	}

	hash, _ := bcrypt.GenerateFromPassword([]byte("4321"), bcrypt.MinCost)
	checker, err = NewPINChecker("1234", string(hash))
	if err != nil {
		t.Fatalf("checker from hash: %v", err)
	}
	if !checker.Check("4321") || checker.Check("1234") {
		t.Fatal("hash should take precedence over plain PIN")
	}

	if _, err := NewPINChecker("12a4", ""); err != ErrInvalidPIN {
		t.Fatalf("expected ErrInvalidPIN, got %v", err)
	}
}

func TestOpenStoreBackends(t *testing.T) {
	st, err := OpenStore(context.Background(), Config{StoreBackend: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	defer st.Close()

	if _, err := OpenStore(context.Background(), Config{StoreBackend: "etcd"}); err == nil {
		t.Fatal("unknown backend should fail")
	}
}
