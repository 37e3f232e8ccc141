package config

import (
	"os"
	"strings"
)

// APP_ENV selects which config file LoadConfig prefers and how strict
// validation is about deployment settings.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

var envAliases = map[string]string{
	"dev":   EnvDevelopment,
	"prod":  EnvProduction,
	"stage": EnvStaging,
	"stag":  EnvStaging,
}

// AppEnvironment reads APP_ENV, normalising common shorthands. An unset
// value means development.
func AppEnvironment() string {
	env := strings.ToLower(strings.TrimSpace(os.Getenv("APP_ENV")))
	if env == "" {
		return EnvDevelopment
	}
	if canonical, ok := envAliases[env]; ok {
		return canonical
	}
	return env
}

// ResolvePath swaps the default config file for an environment specific
// sibling (config.production.yml and friends) when one exists on disk.
// A path the operator chose explicitly is never overridden.
func ResolvePath(path, defaultPath string) string {
	if path == "" {
		path = defaultPath
	}
	if path != defaultPath {
		return path
	}
	envPath := strings.TrimSuffix(defaultPath, ".yml") + "." + AppEnvironment() + ".yml"
	if _, err := os.Stat(envPath); err == nil {
		return envPath
	}
	return path
}

// productionLike reports whether the environment must fail fast on
// configuration that would silently lose data in a deployment, such as
// a recorder without an S3 destination.
func productionLike(env string) bool {
	return env == EnvProduction || env == EnvStaging
}
