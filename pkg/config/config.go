// Copyright 2026 the glycoprep authors.
// SPDX-License-Identifier: MIT

// Package config holds server configuration loaded from environment
// variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all web server configuration.
type Config struct {
	Port         string
	AppName      string
	SessionsRoot string // per-session upload/result directories
	FrontendURL  string // CORS origin

	// BundledReferencePath is the reference database used when the upload
	// does not include a custom one.
	BundledReferencePath string

	MaxUploadBytes int64 // per-file upload cap
	MaxSessions    int   // active (pending/running) session cap
	Workers        int   // matcher worker count; 0 = serial

	CleanupInterval time.Duration // how often expired sessions are swept
	SessionMaxAge   time.Duration // session directory lifetime
}

// Load reads configuration from environment variables with sensible
// defaults.
func Load() *Config {
	return &Config{
		Port:                 envOrDefault("GLYCOPREP_PORT", "8080"),
		AppName:              envOrDefault("GLYCOPREP_APP_NAME", "glycoprep"),
		SessionsRoot:         envOrDefault("GLYCOPREP_SESSIONS_ROOT", "/tmp/glycoprep"),
		FrontendURL:          envOrDefault("GLYCOPREP_FRONTEND_URL", "http://localhost:5173"),
		BundledReferencePath: envOrDefault("GLYCOPREP_REFERENCE_DB", "data/db/human_colon.xlsx"),
		MaxUploadBytes:       envOrDefaultInt64("GLYCOPREP_MAX_UPLOAD_BYTES", 50*1024*1024),
		MaxSessions:          envOrDefaultInt("GLYCOPREP_MAX_SESSIONS", 50),
		Workers:              envOrDefaultInt("GLYCOPREP_WORKERS", 0),
		CleanupInterval:      envOrDefaultDuration("GLYCOPREP_CLEANUP_INTERVAL", 10*time.Minute),
		SessionMaxAge:        envOrDefaultDuration("GLYCOPREP_SESSION_MAX_AGE", 2*time.Hour),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
