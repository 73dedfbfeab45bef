package config

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	apperrors "github.com/kbukum/dirtytables/errors"
)

// FileSystem interface for file operations (useful for testing).
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
	Getwd() (string, error)
}

// RealFileSystem implements FileSystem using actual file operations.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

func (rfs *RealFileSystem) Getwd() (string, error) {
	return os.Getwd()
}

// Resolver handles finding and resolving config and env files.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles finds config and env files for a service.
// Returns explicit paths if provided, otherwise searches for them.
func (cr *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}

	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.findConfigFile(serviceName)
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.findEnvFile()
	}

	return resolved
}

// findConfigFile searches for <service>.yml and config.yml. Test packages
// run from their own directory, so parents are searched too.
func (cr *Resolver) findConfigFile(serviceName string) string {
	var searchPaths []string
	for _, base := range []string{".", "..", "../.."} {
		searchPaths = append(searchPaths,
			fmt.Sprintf("%s/%s.yml", base, serviceName),
			fmt.Sprintf("%s/config/%s.yml", base, serviceName),
			fmt.Sprintf("%s/tests/%s.yml", base, serviceName),
		)
	}
	searchPaths = append(searchPaths, "./config/config.yml", "./config.yml")

	for _, path := range searchPaths {
		if cr.FileSystem.Exists(path) {
			return path
		}
	}
	return ""
}

// findEnvFile searches for .env.testing and .env files.
func (cr *Resolver) findEnvFile() string {
	for _, envFile := range []string{".env.testing", ".env"} {
		for _, base := range []string{".", "..", "../.."} {
			fullPath := base + "/" + envFile
			if cr.FileSystem.Exists(fullPath) {
				return fullPath
			}
		}
	}
	return ""
}

// LoaderConfig holds dependencies and optional file overrides.
type LoaderConfig struct {
	FileSystem FileSystem
	ConfigFile string // Direct config file path (optional)
	EnvFile    string // Direct env file path (optional)
}

// LoaderOption is a functional option for LoadConfig.
type LoaderOption func(*LoaderConfig)

// WithFileSystem sets a custom filesystem for the loader.
func WithFileSystem(fs FileSystem) LoaderOption {
	return func(lc *LoaderConfig) { lc.FileSystem = fs }
}

// WithConfigFile sets an explicit config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// LoadConfig loads configuration for a service into the provided cfg struct.
// It searches for config and .env files in standard locations, applies
// environment overrides, and unmarshals the result into cfg. An explicit
// config file that does not exist is a configuration error; a missing
// discovered one leaves cfg empty.
func LoadConfig(serviceName string, cfg interface{}, opts ...LoaderOption) error {
	var lc LoaderConfig
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.FileSystem == nil {
		lc.FileSystem = &RealFileSystem{}
	}
	if lc.ConfigFile != "" && !lc.FileSystem.Exists(lc.ConfigFile) {
		return apperrors.Configuration(fmt.Sprintf("config file %s does not exist", lc.ConfigFile))
	}

	resolver := &Resolver{FileSystem: lc.FileSystem}
	files := resolver.ResolveFiles(serviceName, lc)

	return loadFromResolvedFiles(serviceName, cfg, files, lc.FileSystem)
}

// loadFromResolvedFiles loads configuration from specific files.
func loadFromResolvedFiles(serviceName string, cfg interface{}, files ResolvedFiles, fs FileSystem) error {
	v := viper.New()

	// 1. YAML config is the base.
	if files.ConfigFile != "" && fs.Exists(files.ConfigFile) {
		v.SetConfigFile(files.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return apperrors.Configuration(fmt.Sprintf("failed to read config file %s", files.ConfigFile)).WithCause(err)
		}
	}

	// 2. .env values join the process environment.
	if files.EnvFile != "" && fs.Exists(files.EnvFile) {
		if err := fs.LoadEnv(files.EnvFile); err != nil {
			return apperrors.Configuration(fmt.Sprintf("failed to load env file %s", files.EnvFile)).WithCause(err)
		}
	}

	// 3. Environment variables override known keys.
	bindEnvOverrides(v)

	if err := v.Unmarshal(cfg); err != nil {
		return apperrors.Configuration(fmt.Sprintf("failed to unmarshal config for %s", serviceName)).WithCause(err)
	}
	return nil
}

// bindEnvOverrides sets every known key for which an environment variable
// variant exists. Only keys already present are touched, so unrelated
// variables cannot add entries to the connection map.
func bindEnvOverrides(v *viper.Viper) {
	known := v.AllKeys()
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok {
			continue
		}
		for _, variant := range generateEnvKeyVariants(key) {
			if slices.Contains(known, variant) {
				v.Set(variant, value)
			}
		}
	}
}

// generateEnvKeyVariants creates the possible nested keys of an
// environment variable.
// Examples:
//
//	LOGGING_LEVEL -> [logging_level, logging.level]
//	CONNECTIONS_TEST_REPORTING_DSN -> [..., connections.test_reporting.dsn, ...]
func generateEnvKeyVariants(envKey string) []string {
	lowerKey := strings.ToLower(envKey)
	parts := strings.Split(lowerKey, "_")

	if len(parts) <= 1 {
		return []string{lowerKey}
	}

	variants := []string{
		lowerKey,
		strings.ReplaceAll(lowerKey, "_", "."),
	}

	// Every way of splitting into "a.b_c" and "a.b_c.d".
	for i := 1; i < len(parts); i++ {
		prefix := strings.Join(parts[:i], ".")
		suffix := strings.Join(parts[i:], "_")
		variants = append(variants, prefix+"."+suffix)
	}
	for i := 1; i < len(parts)-1; i++ {
		for j := i + 1; j < len(parts); j++ {
			variants = append(variants, strings.Join([]string{
				strings.Join(parts[:i], "_"),
				strings.Join(parts[i:j], "_"),
				strings.Join(parts[j:], "_"),
			}, "."))
		}
	}

	return removeDuplicates(variants)
}

// removeDuplicates removes duplicate strings from a slice.
func removeDuplicates(items []string) []string {
	seen := make(map[string]bool, len(items))
	result := make([]string, 0, len(items))

	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			result = append(result, item)
		}
	}

	return result
}
