package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadEnv_FallsBackToGoModRoot(t *testing.T) {
	tmp := t.TempDir()

	requireWriteFile(t, filepath.Join(tmp, "go.mod"), "module example.com/test\n\ngo 1.22\n")
	requireWriteFile(t, filepath.Join(tmp, ".env.local"), "BACKOFFICE_TEST_ENV_LOAD=ok\n")

	sub := filepath.Join(tmp, "modules", "audit")
	requireMkdirAll(t, sub)

	origWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(sub); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	_ = os.Unsetenv("BACKOFFICE_TEST_ENV_LOAD")

	n, err := LoadEnv([]string{".env", ".env.local"})
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 env file loaded, got %d", n)
	}
	if got := os.Getenv("BACKOFFICE_TEST_ENV_LOAD"); got != "ok" {
		t.Fatalf("expected env var loaded from repo root, got %q", got)
	}
}

func TestConfiguration_Validate(t *testing.T) {
	valid := func() *Configuration {
		return &Configuration{ResourceStore: " Redis ", PageSize: 25, MaxPageSize: 100}
	}

	c := valid()
	require.NoError(t, c.Validate())
	require.Equal(t, ResourceStoreRedis, c.ResourceStore)

	c = valid()
	c.ResourceStore = ""
	require.NoError(t, c.Validate())
	require.Equal(t, ResourceStorePostgres, c.ResourceStore)

	c = valid()
	c.ResourceStore = "s3"
	require.ErrorContains(t, c.Validate(), "RESOURCE_STORE")

	c = valid()
	c.EditGrants.TTL = -time.Minute
	require.ErrorContains(t, c.Validate(), "EDIT_GRANT_TTL")

	c = valid()
	c.MaxPageSize = 10
	require.ErrorContains(t, c.Validate(), "MAX_PAGE_SIZE")
}

func TestConfiguration_UsesRedis(t *testing.T) {
	require.False(t, (&Configuration{ResourceStore: ResourceStorePostgres}).UsesRedis())
	require.True(t, (&Configuration{ResourceStore: ResourceStoreRedis}).UsesRedis())
	require.True(t, (&Configuration{ResourceStore: ResourceStoreMemory, InvalidationEnabled: true}).UsesRedis())
}

func requireWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireMkdirAll(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
}
