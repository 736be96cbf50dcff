package assetx

import (
	"time"
)

// Config holds all asset storage configuration options
type Config struct {
	// Backend selects the storage medium ("local", "object-store", "remote-file-server")
	Backend BackendKind `mapstructure:"backend" yaml:"backend" default:"local"`

	// BasePath is the directory (or key prefix) assets are stored under
	BasePath string `mapstructure:"base_path" yaml:"base_path" default:"assets"`

	// AllowedExtensions is the upload allow-list; "*" allows everything
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`

	// URLPrefix is prepended to "/" + stored name when building asset URLs
	URLPrefix string `mapstructure:"url_prefix" yaml:"url_prefix"`

	// OperationTimeout bounds every individual backend call
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout" default:"30s"`

	// EnableLogging enables detailed per-call debug logging
	EnableLogging bool `mapstructure:"enable_logging" yaml:"enable_logging" default:"false"`

	Local            LocalConfig            `mapstructure:"local" yaml:"local"`
	ObjectStore      ObjectStoreConfig      `mapstructure:"object_store" yaml:"object_store"`
	RemoteFileServer RemoteFileServerConfig `mapstructure:"remote_file_server" yaml:"remote_file_server"`
	Registry         RegistryConfig         `mapstructure:"registry" yaml:"registry"`
}

// Registry kinds understood by the registry package
const (
	RegistryMemory = "memory"
	RegistryFile   = "file"
)

// RegistryConfig selects where asset records are kept
type RegistryConfig struct {
	// Kind is "memory" or "file"
	Kind string `mapstructure:"kind" yaml:"kind" default:"memory"`

	// Path is the JSON manifest file used by the "file" registry
	Path string `mapstructure:"path" yaml:"path" default:"./data/assets.json"`
}

// LocalConfig configures the local disk backend
type LocalConfig struct {
	// Root is the directory every backend path is resolved under
	Root string `mapstructure:"root" yaml:"root" default:"./data"`
}

// ObjectStoreConfig configures the S3-compatible backend
type ObjectStoreConfig struct {
	// Bucket is the storage bucket name
	Bucket string `mapstructure:"bucket" yaml:"bucket"`

	// Region is the AWS region (e.g., "us-west-2")
	Region string `mapstructure:"region" yaml:"region" default:"us-east-1"`

	// Endpoint is the custom endpoint URL (for MinIO, etc.)
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// UsePathStyle forces path-style addressing (true for MinIO)
	UsePathStyle bool `mapstructure:"use_path_style" yaml:"use_path_style" default:"false"`

	// AccessKey is the access key ID
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`

	// SecretKey is the secret access key
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`

	// SessionToken is the temporary session token (optional)
	SessionToken string `mapstructure:"session_token" yaml:"session_token"`

	// UseSDKDefaults lets the AWS SDK default credential chain be used when
	// explicit credentials are not provided
	UseSDKDefaults bool `mapstructure:"use_sdk_defaults" yaml:"use_sdk_defaults" default:"false"`

	// Profile selects a shared credentials/profile name
	Profile string `mapstructure:"profile" yaml:"profile"`

	// RoleARN optionally specifies a role to assume via STS
	RoleARN string `mapstructure:"role_arn" yaml:"role_arn"`

	// ExternalID is passed to STS AssumeRole when RoleARN is used
	ExternalID string `mapstructure:"external_id" yaml:"external_id"`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// DisableSSL disables SSL for connections (development only)
	DisableSSL bool `mapstructure:"disable_ssl" yaml:"disable_ssl" default:"false"`

	// MaxRetries is the maximum number of attempts per request
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" default:"3"`

	// BackoffInitial is the initial backoff delay
	BackoffInitial time.Duration `mapstructure:"backoff_initial" yaml:"backoff_initial" default:"200ms"`

	// BackoffMax is the maximum backoff delay
	BackoffMax time.Duration `mapstructure:"backoff_max" yaml:"backoff_max" default:"5s"`

	// SkipBucketCheck skips the HeadBucket check at startup
	SkipBucketCheck bool `mapstructure:"skip_bucket_check" yaml:"skip_bucket_check" default:"false"`
}

// RemoteFileServerConfig configures the SFTP backend
type RemoteFileServerConfig struct {
	// Host is the SFTP server host name
	Host string `mapstructure:"host" yaml:"host"`

	// Port is the SSH port
	Port int `mapstructure:"port" yaml:"port" default:"22"`

	// User is the login name
	User string `mapstructure:"user" yaml:"user"`

	// Password authenticates the user when set
	Password string `mapstructure:"password" yaml:"password"`

	// PrivateKeyPath points to a PEM private key used for authentication
	PrivateKeyPath string `mapstructure:"private_key_path" yaml:"private_key_path"`

	// PrivateKeyPassphrase decrypts PrivateKeyPath when it is encrypted
	PrivateKeyPassphrase string `mapstructure:"private_key_passphrase" yaml:"private_key_passphrase"`

	// KnownHostsPath enables host key verification; empty accepts any key
	KnownHostsPath string `mapstructure:"known_hosts_path" yaml:"known_hosts_path"`

	// Root is prepended to relative backend paths on the server
	Root string `mapstructure:"root" yaml:"root" default:"/"`

	// DialTimeout bounds the SSH handshake
	DialTimeout time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" default:"10s"`

	// DialRetries is how many times a failed dial is retried
	DialRetries int `mapstructure:"dial_retries" yaml:"dial_retries" default:"3"`
}

// Prefix implements configx.Configurable and returns the configuration prefix
func (Config) Prefix() string { return "assets" }

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend:           BackendLocal,
		BasePath:          "assets",
		AllowedExtensions: []string{AllowAll},
		OperationTimeout:  30 * time.Second,
		Local: LocalConfig{
			Root: "./data",
		},
		ObjectStore: ObjectStoreConfig{
			Region:         "us-east-1",
			MaxRetries:     3,
			BackoffInitial: 200 * time.Millisecond,
			BackoffMax:     5 * time.Second,
		},
		RemoteFileServer: RemoteFileServerConfig{
			Port:        22,
			Root:        "/",
			DialTimeout: 10 * time.Second,
			DialRetries: 3,
		},
		Registry: RegistryConfig{
			Kind: RegistryMemory,
			Path: "./data/assets.json",
		},
	}
}

// NewConfigFromLoader creates a Config using the standard configx.Loader pattern.
// This is useful for standalone usage without FX dependency injection.
// For FX-based applications, use the Module which provides NewConfig automatically.
func NewConfigFromLoader(loader interface {
	Unmarshal(any) error
}) (*Config, error) {
	cfg := DefaultConfig()
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	// Sanitize and validate
	cfg = cfg.Sanitize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
