// Package config provides configuration management for bosun.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment
// variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string

	// Container is the object storage container (bucket) holding state
	// documents and backup artifacts.
	Container string
	// RootFolder partitions administrative artifacts from tenant artifacts
	// sharing the container.
	RootFolder string

	// AdminUsername and AdminPassword protect the admin API. The password may
	// be a bcrypt hash (recommended) or plaintext for development.
	AdminUsername string
	AdminPassword string

	// DirectorsFile is the path to the YAML file describing director
	// backends and scheduled backups.
	DirectorsFile string

	// AgentPort is the well-known port agents listen on.
	AgentPort int

	RateLimitRequests int64
	RateLimitPeriod   string

	// Storage access settings.
	StorageEndpoint  string
	StorageRegion    string
	StorageAccessKey string
	StorageSecretKey string
	StorageUseSSL    bool
}

// DefaultAgentPort is the conventional agent listen port.
const DefaultAgentPort = 2718

// DefaultRootFolder is the default storage partition for administrative
// deployment artifacts.
const DefaultRootFolder = "oob-deployments"

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		listenAddr = ":" + port
	}

	rootFolder := os.Getenv("ROOT_FOLDER")
	if rootFolder == "" {
		rootFolder = DefaultRootFolder
	}

	return ServerConfig{
		Environment:       env,
		ListenAddr:        listenAddr,
		Container:         os.Getenv("BACKUP_CONTAINER"),
		RootFolder:        rootFolder,
		AdminUsername:     os.Getenv("ADMIN_USERNAME"),
		AdminPassword:     os.Getenv("ADMIN_PASSWORD"),
		DirectorsFile:     getEnvDefault("DIRECTORS_FILE", "directors.yaml"),
		AgentPort:         getEnvInt("AGENT_PORT", DefaultAgentPort),
		RateLimitRequests: int64(getEnvInt("RATE_LIMIT_REQUESTS", 100)),
		RateLimitPeriod:   getEnvDefault("RATE_LIMIT_PERIOD", "1m"),
		StorageEndpoint:   os.Getenv("STORAGE_ENDPOINT"),
		StorageRegion:     os.Getenv("STORAGE_REGION"),
		StorageAccessKey:  os.Getenv("STORAGE_ACCESS_KEY"),
		StorageSecretKey:  os.Getenv("STORAGE_SECRET_KEY"),
		StorageUseSSL:     getEnvBool("STORAGE_USE_SSL", true),
	}
}

// getEnvDefault reads a string from an environment variable, returning the
// default if unset.
func getEnvDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the
// default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the
// default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
