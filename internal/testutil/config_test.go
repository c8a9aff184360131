package testutil

import (
	"os"
	"strings"
	"testing"
)

func TestDefaultTestDBConfig(t *testing.T) {
	t.Run("defaults to local test database port 55432", func(t *testing.T) {
		for _, k := range []string{"TEST_DB_HOST", "TEST_DB_PORT", "TEST_DB_USER", "TEST_DB_PASSWORD", "TEST_DB_NAME", "DB_SSL_MODE"} {
			t.Setenv(k, "")
			os.Unsetenv(k)
		}

		cfg := DefaultTestDBConfig()
		if cfg.Host != "localhost" {
			t.Errorf("expected Host=localhost, got %s", cfg.Host)
		}
		if cfg.Port != "55432" {
			t.Errorf("expected Port=55432 (test DB), got %s", cfg.Port)
		}
		if cfg.SSLMode != "disable" {
			t.Errorf("expected SSLMode=disable, got %s", cfg.SSLMode)
		}
		if cfg.User != "catalog" || cfg.Password != "catalog" || cfg.DBName != "catalog" {
			t.Errorf("expected catalog credentials, got %+v", cfg)
		}
	})

	t.Run("respects CI environment", func(t *testing.T) {
		t.Setenv("TEST_DB_HOST", "postgres")
		t.Setenv("TEST_DB_PORT", "5432")
		t.Setenv("DB_SSL_MODE", "require")

		cfg := DefaultTestDBConfig()
		if cfg.Host != "postgres" || cfg.Port != "5432" {
			t.Errorf("expected postgres:5432, got %s:%s", cfg.Host, cfg.Port)
		}
		if dsn := cfg.dsn(); !strings.HasSuffix(dsn, "@postgres:5432/catalog?sslmode=require") {
			t.Errorf("unexpected dsn %q", dsn)
		}
	})
}

func TestEnvBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		t.Setenv("TESTUTIL_FLAG", v)
		if !envBool("TESTUTIL_FLAG") {
			t.Errorf("envBool(%q) = false, want true", v)
		}
	}
	t.Setenv("TESTUTIL_FLAG", "nope")
	if envBool("TESTUTIL_FLAG") {
		t.Errorf("envBool(nope) = true, want false")
	}
}
