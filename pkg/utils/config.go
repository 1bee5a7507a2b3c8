package utils

import (
	"os"
	"strconv"
	"time"
)

type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTDuration time.Duration
}

func LoadAuthConfig() AuthConfig {
	secret := os.Getenv("NOVELHUB_JWT_SECRET")
	if secret == "" {
		// dev default (change for demo / production)
		secret = "dev-secret-change-me"
	}

	issuer := os.Getenv("NOVELHUB_JWT_ISSUER")
	if issuer == "" {
		issuer = "novelhub"
	}

	duration := 24 * time.Hour
	if ttl := os.Getenv("NOVELHUB_JWT_TTL_HOURS"); ttl != "" {
		if hours, err := strconv.Atoi(ttl); err == nil && hours > 0 {
			duration = time.Duration(hours) * time.Hour
		}
	}

	return AuthConfig{
		JWTSecret:   secret,
		JWTIssuer:   issuer,
		JWTDuration: duration,
	}
}

type CacheConfig struct {
	RedisAddr     string
	RedisPassword string

	// TTL of healthy discovery documents; failures cache for ErrorTTL only
	// so an empty page retries soon.
	DiscoveryTTL time.Duration
	ErrorTTL     time.Duration
}

func LoadCacheConfig() CacheConfig {
	addr := os.Getenv("NOVELHUB_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	cfg := CacheConfig{
		RedisAddr:     addr,
		RedisPassword: os.Getenv("NOVELHUB_REDIS_PASSWORD"),
		DiscoveryTTL:  60 * time.Minute,
		ErrorTTL:      5 * time.Minute,
	}

	if m := os.Getenv("NOVELHUB_DISCOVERY_TTL_MINUTES"); m != "" {
		if minutes, err := strconv.Atoi(m); err == nil && minutes > 0 {
			cfg.DiscoveryTTL = time.Duration(minutes) * time.Minute
		}
	}

	return cfg
}
