// Package config layers environment defaults under the CLI flags. A .env
// file in the working directory is honored when present.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variable names recognized by the CLI.
const (
	EnvServerURL      = "VOXCHUNK_SERVER_URL"
	EnvAPIKey         = "VOXCHUNK_API_KEY"
	EnvChunkSize      = "VOXCHUNK_CHUNK_SIZE_SECONDS"
	EnvOverlap        = "VOXCHUNK_OVERLAP_SECONDS"
	EnvMaxConcurrency = "VOXCHUNK_MAX_CONCURRENCY"
	EnvQuality        = "VOXCHUNK_QUALITY"
)

// Load reads .env from the working directory into the process
// environment. A missing file is not an error; explicit paths can be
// passed for tests.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	if err := godotenv.Load(paths...); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}

// GetEnv returns the value of key, or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

// GetEnvInt returns the integer value of key, or fallback when unset,
// empty, or not an integer.
func GetEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

// GetEnvFloat returns the float value of key, or fallback when unset,
// empty, or not a number.
func GetEnvFloat(key string, fallback float64) float64 {
	if s := os.Getenv(key); s != "" {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return fallback
}
