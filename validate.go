package assetx

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config field %q: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrInvalidConfig) match validation failures
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// ValidateConfig performs comprehensive validation of asset storage configuration
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return &ValidationError{Field: "config", Message: "configuration cannot be nil"}
	}

	var errors []string

	// Validate backend
	if cfg.Backend == "" {
		errors = append(errors, "backend cannot be empty")
	} else if !cfg.Backend.Valid() {
		errors = append(errors, fmt.Sprintf("unsupported backend %q, expected one of local, object-store, remote-file-server", cfg.Backend))
	}

	if strings.Contains(cfg.BasePath, "..") {
		errors = append(errors, "base_path cannot contain '..' patterns")
	}

	if len(cfg.AllowedExtensions) == 0 {
		errors = append(errors, "allowed_extensions cannot be empty; use \"*\" to allow all")
	}
	for _, ext := range cfg.AllowedExtensions {
		if strings.TrimSpace(ext) == "" {
			errors = append(errors, "allowed_extensions cannot contain empty entries")
			break
		}
	}

	// Validate timeouts
	if cfg.OperationTimeout <= 0 {
		errors = append(errors, "operation_timeout must be positive")
	}
	if cfg.OperationTimeout > 30*time.Minute {
		errors = append(errors, "operation_timeout should not exceed 30 minutes")
	}

	switch cfg.Backend {
	case BackendLocal:
		errors = append(errors, validateLocal(&cfg.Local)...)
	case BackendObjectStore:
		errors = append(errors, validateObjectStore(&cfg.ObjectStore)...)
	case BackendRemoteFileServer:
		errors = append(errors, validateRemoteFileServer(&cfg.RemoteFileServer)...)
	}

	switch cfg.Registry.Kind {
	case "", RegistryMemory:
	case RegistryFile:
		if strings.TrimSpace(cfg.Registry.Path) == "" {
			errors = append(errors, "registry.path is required for the file registry")
		}
	default:
		errors = append(errors, fmt.Sprintf("unsupported registry kind %q, expected memory or file", cfg.Registry.Kind))
	}

	if len(errors) > 0 {
		return &ValidationError{
			Field:   "config",
			Message: strings.Join(errors, "; "),
		}
	}

	return nil
}

func validateLocal(cfg *LocalConfig) []string {
	if strings.TrimSpace(cfg.Root) == "" {
		return []string{"local.root cannot be empty"}
	}
	return nil
}

func validateObjectStore(cfg *ObjectStoreConfig) []string {
	var errors []string

	// Validate bucket
	if cfg.Bucket == "" {
		errors = append(errors, "object_store.bucket cannot be empty")
	} else if err := validateBucketName(cfg.Bucket); err != nil {
		errors = append(errors, fmt.Sprintf("invalid object_store.bucket: %v", err))
	}

	// Validate region (required for AWS, optional for MinIO)
	if cfg.Region == "" && cfg.Endpoint == "" {
		errors = append(errors, "object_store.region is required when endpoint is not specified (AWS mode)")
	}

	// Disallow partially-specified explicit credentials
	if (cfg.AccessKey == "" && cfg.SecretKey != "") || (cfg.AccessKey != "" && cfg.SecretKey == "") {
		errors = append(errors, "both object_store.access_key and object_store.secret_key must be set together")
	}

	// Custom endpoints rarely expose STS or instance credentials, so require
	// some credential source up front.
	if cfg.AccessKey == "" && cfg.SecretKey == "" && cfg.Endpoint != "" {
		if cfg.RoleARN == "" && cfg.Profile == "" && !cfg.UseSDKDefaults {
			errors = append(errors, "credentials required for custom endpoint: provide access_key+secret_key, a profile, or enable use_sdk_defaults")
		}
	}

	// Validate retry configuration
	if cfg.MaxRetries < 0 {
		errors = append(errors, "object_store.max_retries cannot be negative")
	}
	if cfg.MaxRetries > 10 {
		errors = append(errors, "object_store.max_retries should not exceed 10")
	}
	if cfg.BackoffInitial <= 0 {
		errors = append(errors, "object_store.backoff_initial must be positive")
	}
	if cfg.BackoffMax <= cfg.BackoffInitial {
		errors = append(errors, "object_store.backoff_max must be greater than backoff_initial")
	}

	// Validate endpoint format if provided
	if cfg.Endpoint != "" {
		if err := validateEndpoint(cfg.Endpoint); err != nil {
			errors = append(errors, fmt.Sprintf("invalid object_store.endpoint: %v", err))
		}
	}

	if cfg.KeyPrefix != "" {
		if err := validateKeyPrefix(cfg.KeyPrefix); err != nil {
			errors = append(errors, fmt.Sprintf("invalid object_store.key_prefix: %v", err))
		}
	}

	if cfg.RoleARN != "" && !isPlausibleRoleARN(cfg.RoleARN) {
		errors = append(errors, "object_store.role_arn looks invalid: must be a valid IAM role ARN (e.g., arn:aws:iam::123456789012:role/RoleName)")
	}

	return errors
}

func validateRemoteFileServer(cfg *RemoteFileServerConfig) []string {
	var errors []string

	if strings.TrimSpace(cfg.Host) == "" {
		errors = append(errors, "remote_file_server.host cannot be empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		errors = append(errors, "remote_file_server.port must be between 1 and 65535")
	}
	if cfg.User == "" {
		errors = append(errors, "remote_file_server.user cannot be empty")
	}
	if cfg.Password == "" && cfg.PrivateKeyPath == "" {
		errors = append(errors, "remote_file_server requires password or private_key_path")
	}
	if cfg.DialTimeout <= 0 {
		errors = append(errors, "remote_file_server.dial_timeout must be positive")
	}
	if cfg.DialRetries < 0 {
		errors = append(errors, "remote_file_server.dial_retries cannot be negative")
	}

	return errors
}

// isPlausibleRoleARN performs a light-weight validation of an IAM role ARN
func isPlausibleRoleARN(arn string) bool {
	// Expected form: arn:partition:service:region:account-id:resource
	parts := strings.SplitN(arn, ":", 6)
	if len(parts) != 6 {
		return false
	}
	if parts[0] != "arn" || parts[2] != "iam" {
		return false
	}
	if !isNumeric(parts[4]) {
		return false
	}
	return strings.HasPrefix(parts[5], "role/")
}

// validateBucketName validates S3 bucket naming rules
func validateBucketName(bucket string) error {
	if len(bucket) < 3 || len(bucket) > 63 {
		return fmt.Errorf("bucket name must be between 3 and 63 characters")
	}

	if strings.HasPrefix(bucket, "-") || strings.HasSuffix(bucket, "-") {
		return fmt.Errorf("bucket name cannot start or end with a hyphen")
	}

	if strings.HasPrefix(bucket, ".") || strings.HasSuffix(bucket, ".") {
		return fmt.Errorf("bucket name cannot start or end with a period")
	}

	if strings.Contains(bucket, "..") {
		return fmt.Errorf("bucket name cannot contain consecutive periods")
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return fmt.Errorf("bucket name contains invalid character: %c", char)
		}
	}

	// Check for IP address pattern (simplified)
	parts := strings.Split(bucket, ".")
	if len(parts) == 4 {
		allNumeric := true
		for _, part := range parts {
			if !isNumeric(part) {
				allNumeric = false
				break
			}
		}
		if allNumeric {
			return fmt.Errorf("bucket name cannot be formatted as an IP address")
		}
	}

	return nil
}

// isValidBucketChar checks if a character is valid in S3 bucket names
func isValidBucketChar(char rune) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= '0' && char <= '9') ||
		char == '-' || char == '.'
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}

// validateEndpoint validates the endpoint URL format
func validateEndpoint(endpoint string) error {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return nil
	}

	if strings.Contains(endpoint, "://") {
		return fmt.Errorf("endpoint protocol must be http or https")
	}

	if strings.Contains(endpoint, " ") {
		return fmt.Errorf("endpoint cannot contain spaces")
	}

	return nil
}

// validateKeyPrefix validates the object key prefix format
func validateKeyPrefix(prefix string) error {
	if strings.HasPrefix(prefix, "/") || strings.HasSuffix(prefix, "/") {
		return fmt.Errorf("key prefix should not start or end with '/'")
	}

	if strings.Contains(prefix, "..") {
		return fmt.Errorf("key prefix cannot contain '..' patterns")
	}

	if strings.Contains(prefix, "//") {
		return fmt.Errorf("key prefix cannot contain consecutive slashes")
	}

	return nil
}

// Sanitize applies automatic fixes to configuration where possible and returns
// a sanitized copy without mutating the receiver.
func (cfg *Config) Sanitize() *Config {
	if cfg == nil {
		return DefaultConfig()
	}

	// Create a copy to avoid mutating the original
	sanitized := *cfg
	sanitized.AllowedExtensions = append([]string(nil), cfg.AllowedExtensions...)

	if sanitized.Backend == "" {
		sanitized.Backend = BackendLocal
	}
	sanitized.Backend = BackendKind(strings.ToLower(strings.TrimSpace(string(sanitized.Backend))))

	sanitized.BasePath = strings.TrimSuffix(strings.ReplaceAll(strings.TrimSpace(sanitized.BasePath), "\\", "/"), "/")

	if len(sanitized.AllowedExtensions) == 0 {
		sanitized.AllowedExtensions = []string{AllowAll}
	}
	for i, ext := range sanitized.AllowedExtensions {
		sanitized.AllowedExtensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}

	sanitized.URLPrefix = strings.TrimSuffix(strings.TrimSpace(sanitized.URLPrefix), "/")

	if sanitized.OperationTimeout == 0 {
		sanitized.OperationTimeout = 30 * time.Second
	}

	if sanitized.Local.Root == "" {
		sanitized.Local.Root = "./data"
	}

	os := &sanitized.ObjectStore
	if os.Region == "" && os.Endpoint == "" {
		os.Region = "us-east-1"
	}
	if os.MaxRetries == 0 {
		os.MaxRetries = 3
	}
	if os.BackoffInitial == 0 {
		os.BackoffInitial = 200 * time.Millisecond
	}
	if os.BackoffMax == 0 {
		os.BackoffMax = 5 * time.Second
	}
	if os.Endpoint != "" {
		os.Endpoint = strings.TrimSuffix(strings.TrimSpace(os.Endpoint), "/")
	}
	if os.KeyPrefix != "" {
		os.KeyPrefix = strings.Trim(os.KeyPrefix, "/")
	}

	rfs := &sanitized.RemoteFileServer
	if rfs.Port == 0 {
		rfs.Port = 22
	}
	if rfs.Root == "" {
		rfs.Root = "/"
	}
	if rfs.DialTimeout == 0 {
		rfs.DialTimeout = 10 * time.Second
	}

	sanitized.Registry.Kind = strings.ToLower(strings.TrimSpace(sanitized.Registry.Kind))
	if sanitized.Registry.Kind == "" {
		sanitized.Registry.Kind = RegistryMemory
	}
	if sanitized.Registry.Kind == RegistryFile && sanitized.Registry.Path == "" {
		sanitized.Registry.Path = "./data/assets.json"
	}

	return &sanitized
}

// ConfigSummary returns a safe summary of the configuration for logging
func (cfg *Config) ConfigSummary() map[string]any {
	if cfg == nil {
		return map[string]any{"error": "nil config"}
	}

	summary := map[string]any{
		"backend":            string(cfg.Backend),
		"base_path":          cfg.BasePath,
		"allowed_extensions": strings.Join(cfg.AllowedExtensions, ","),
		"url_prefix":         cfg.URLPrefix,
		"operation_timeout":  cfg.OperationTimeout.String(),
		"enable_logging":     cfg.EnableLogging,
		"registry":           cfg.Registry.Kind,
	}

	switch cfg.Backend {
	case BackendLocal:
		summary["local_root"] = cfg.Local.Root
	case BackendObjectStore:
		summary["bucket"] = cfg.ObjectStore.Bucket
		summary["region"] = cfg.ObjectStore.Region
		summary["endpoint"] = cfg.ObjectStore.Endpoint
		summary["key_prefix"] = cfg.ObjectStore.KeyPrefix
		// Don't include sensitive information
		if cfg.ObjectStore.AccessKey != "" {
			summary["has_access_key"] = true
			summary["access_key_prefix"] = cfg.ObjectStore.AccessKey[:min(4, len(cfg.ObjectStore.AccessKey))] + "..."
		}
		if cfg.ObjectStore.SecretKey != "" {
			summary["has_secret_key"] = true
		}
	case BackendRemoteFileServer:
		summary["host"] = cfg.RemoteFileServer.Host
		summary["port"] = cfg.RemoteFileServer.Port
		summary["user"] = cfg.RemoteFileServer.User
		summary["root"] = cfg.RemoteFileServer.Root
		summary["has_password"] = cfg.RemoteFileServer.Password != ""
		summary["has_private_key"] = cfg.RemoteFileServer.PrivateKeyPath != ""
	}

	return summary
}

// String returns a safe string representation (redacts secrets)
func (cfg *Config) String() string {
	return fmt.Sprintf("Config{Backend:%s, BasePath:%s, AllowedExtensions:%v, OperationTimeout:%s}",
		cfg.Backend, cfg.BasePath, cfg.AllowedExtensions, cfg.OperationTimeout)
}
