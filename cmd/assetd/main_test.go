package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/internal/testutil"
	"github.com/gostratum/assetx/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, httpCfg, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, assetx.BackendLocal, cfg.Backend)
	assert.Equal(t, []string{assetx.AllowAll}, cfg.AllowedExtensions)
	assert.Equal(t, ":8080", httpCfg.Addr)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := writeFile(t, "assetd.yaml", `
assets:
  backend: object-store
  base_path: dashboards
  allowed_extensions: [png, jpg]
  url_prefix: /static/
  operation_timeout: 45s
  object_store:
    bucket: dashboard-assets
    region: eu-west-1
    access_key: from-file
    secret_key: from-file
  registry:
    kind: file
    path: /var/lib/assetd/assets.json
http:
  addr: ":9090"
  max_upload_bytes: 1048576
`)

	t.Setenv("ASSETS_S3_SECRET_KEY", "from-env")

	cfg, httpCfg, err := loadConfig(path, "")
	require.NoError(t, err)

	assert.Equal(t, assetx.BackendObjectStore, cfg.Backend)
	assert.Equal(t, "dashboards", cfg.BasePath)
	assert.Equal(t, []string{"png", "jpg"}, cfg.AllowedExtensions)
	assert.Equal(t, "/static", cfg.URLPrefix)
	assert.Equal(t, 45*time.Second, cfg.OperationTimeout)
	assert.Equal(t, "dashboard-assets", cfg.ObjectStore.Bucket)
	assert.Equal(t, "from-file", cfg.ObjectStore.AccessKey)
	assert.Equal(t, "from-env", cfg.ObjectStore.SecretKey)
	assert.Equal(t, assetx.RegistryFile, cfg.Registry.Kind)
	assert.Equal(t, ":9090", httpCfg.Addr)
	assert.Equal(t, int64(1048576), httpCfg.MaxUploadBytes)
}

func TestLoadConfig_DotEnv(t *testing.T) {
	dotenv := writeFile(t, ".env", "ASSETS_BACKEND=remote-file-server\nASSETS_SFTP_HOST=files.internal\nASSETS_SFTP_USER=assets\nASSETS_SFTP_PASSWORD=secret\nASSETS_SFTP_PORT=2222\n")
	for _, k := range []string{"ASSETS_BACKEND", "ASSETS_SFTP_HOST", "ASSETS_SFTP_USER", "ASSETS_SFTP_PASSWORD", "ASSETS_SFTP_PORT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, _, err := loadConfig("", dotenv)
	require.NoError(t, err)
	assert.Equal(t, assetx.BackendRemoteFileServer, cfg.Backend)
	assert.Equal(t, "files.internal", cfg.RemoteFileServer.Host)
	assert.Equal(t, "secret", cfg.RemoteFileServer.Password)
	assert.Equal(t, 2222, cfg.RemoteFileServer.Port)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	bad := writeFile(t, "bad.yaml", "assets: [")
	_, _, err = loadConfig(bad, "")
	assert.Error(t, err)

	invalid := writeFile(t, "invalid.yaml", "assets:\n  backend: ftp\n")
	_, _, err = loadConfig(invalid, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, assetx.ErrInvalidConfig))

	// A missing dotenv file is not an error.
	_, _, err = loadConfig("", filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestConfigCommand_RedactsSecrets(t *testing.T) {
	path := writeFile(t, "assetd.yaml", `
assets:
  backend: object-store
  object_store:
    bucket: dashboard-assets
    access_key: AKIAEXAMPLEKEY
    secret_key: super-secret-value
`)
	configPath, envFile = path, ""
	t.Cleanup(func() { configPath, envFile = "", ".env" })

	var out bytes.Buffer
	configCmd.SetOut(&out)
	require.NoError(t, configCmd.RunE(configCmd, nil))

	assert.Contains(t, out.String(), "dashboard-assets")
	assert.NotContains(t, out.String(), "super-secret-value")
	assert.NotContains(t, out.String(), "AKIAEXAMPLEKEY")
}

func TestRootCommand(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["recover"])
	assert.True(t, names["config"])
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestRecoverAssets(t *testing.T) {
	ctx := context.Background()
	backend := testutil.NewMockBackend(assetx.BackendLocal)
	reg := registry.NewMemory()

	cfg := testutil.NewTestConfig()
	svc, err := assetx.NewService(cfg, backend, reg)
	require.NoError(t, err)

	// a1 was interrupted after its content was parked; a2 is healthy.
	require.NoError(t, reg.Save(ctx, &assetx.Asset{ID: "a1", StoredName: "a1.png", StoragePath: "assets"}))
	require.NoError(t, reg.Save(ctx, &assetx.Asset{ID: "a2", StoredName: "a2.png", StoragePath: "assets"}))
	backend.Put("assets/a1.png.temp", []byte("parked"))
	backend.Put("assets/a2.png", []byte("live"))

	checked, failed, err := recoverAssets(ctx, svc, reg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, checked)
	assert.Zero(t, failed)

	data, ok := backend.Object("assets/a1.png")
	require.True(t, ok)
	assert.Equal(t, "parked", string(data))

	checked, failed, err = recoverAssets(ctx, svc, reg, []string{"unknown"})
	assert.Error(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 1, failed)

	_, _, err = recoverAssets(ctx, svc, testutil.NewMockRegistry(), nil)
	assert.Error(t, err)
}
