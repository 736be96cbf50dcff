package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/gostratum/assetx"
	"github.com/gostratum/assetx/httpapi"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// fileConfig is the layout of the YAML config file.
type fileConfig struct {
	Assets assetx.Config  `yaml:"assets"`
	HTTP   httpapi.Config `yaml:"http"`
}

// loadConfig reads the dotenv file (if present), then the YAML file (if
// given), then overlays secrets and a few common settings from the
// environment.
func loadConfig(path, dotenv string) (*assetx.Config, *httpapi.Config, error) {
	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	fc := fileConfig{
		Assets: *assetx.DefaultConfig(),
		HTTP:   httpapi.DefaultConfig(),
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&fc)

	cfg := fc.Assets.Sanitize()
	if err := assetx.ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}
	httpCfg := fc.HTTP
	return cfg, &httpCfg, nil
}

func applyEnv(fc *fileConfig) {
	a := &fc.Assets
	setString(&a.BasePath, "ASSETS_BASE_PATH")
	setString(&a.URLPrefix, "ASSETS_URL_PREFIX")
	if v := os.Getenv("ASSETS_BACKEND"); v != "" {
		a.Backend = assetx.BackendKind(v)
	}

	setString(&a.Local.Root, "ASSETS_LOCAL_ROOT")

	setString(&a.ObjectStore.Bucket, "ASSETS_S3_BUCKET")
	setString(&a.ObjectStore.Endpoint, "ASSETS_S3_ENDPOINT")
	setString(&a.ObjectStore.AccessKey, "ASSETS_S3_ACCESS_KEY")
	setString(&a.ObjectStore.SecretKey, "ASSETS_S3_SECRET_KEY")
	setString(&a.ObjectStore.SessionToken, "ASSETS_S3_SESSION_TOKEN")

	setString(&a.RemoteFileServer.Host, "ASSETS_SFTP_HOST")
	setString(&a.RemoteFileServer.User, "ASSETS_SFTP_USER")
	setString(&a.RemoteFileServer.Password, "ASSETS_SFTP_PASSWORD")
	setString(&a.RemoteFileServer.PrivateKeyPassphrase, "ASSETS_SFTP_KEY_PASSPHRASE")
	if v, err := strconv.Atoi(os.Getenv("ASSETS_SFTP_PORT")); err == nil {
		a.RemoteFileServer.Port = v
	}

	setString(&a.Registry.Kind, "ASSETS_REGISTRY")
	setString(&a.Registry.Path, "ASSETS_REGISTRY_PATH")

	setString(&fc.HTTP.Addr, "HTTP_ADDR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, httpCfg, err := loadConfig(configPath, envFile)
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(map[string]any{
			"assets": cfg.ConfigSummary(),
			"http": map[string]any{
				"addr":             httpCfg.Addr,
				"max_upload_bytes": httpCfg.MaxUploadBytes,
				"allowed_origins":  httpCfg.AllowedOrigins,
			},
		})
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}
