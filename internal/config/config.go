package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lcalzada-xor/presenced/internal/core/domain"
	"github.com/lcalzada-xor/presenced/internal/core/services/analyzer"
	"github.com/lcalzada-xor/presenced/internal/core/services/engine"
)

// Config holds all application configuration.
type Config struct {
	Addr          string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	MockMode      bool
	Debug         bool

	// Secret is the process MAC secret. Loaded once at init, zeroised on
	// teardown, never logged.
	Secret []byte

	// OverrideActors are the actor ids the default authorisation predicate
	// accepts for record overrides.
	OverrideActors []string

	ChallengeValidityMs int
	ChallengeCodeSize   int
	ChallengeNonceSize  int

	RSSIWeakThreshold   int
	RSSIMediumThreshold int

	ResponseSuspiciousFastMs int
	ResponseMinHumanMs       int
	ResponseMaxReasonableMs  int

	LocationJumpDistanceM     float64
	LocationMinMovementTimeMs int
	LocationTTLSec            int

	WifiMinExpected   int
	WifiMaxReasonable int
	WifiBlacklist     []string

	AttestationBlacklist []string

	BehavioralAlpha float64
	AnalysisTTLSec  int
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("PRESENCED_ADDR", ":8080")
	cfg.DBPath = getEnv("PRESENCED_DB", getDefaultDBPath())
	cfg.RedisAddr = getEnv("PRESENCED_REDIS", "")
	cfg.RedisPassword = getEnv("PRESENCED_REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvInt("PRESENCED_REDIS_DB", 0)
	cfg.MockMode = getEnvBool("PRESENCED_MOCK", false)

	cfg.ChallengeValidityMs = getEnvInt("PRESENCED_CHALLENGE_VALIDITY_MS", 15000)
	cfg.ChallengeCodeSize = getEnvInt("PRESENCED_CHALLENGE_CODE_SIZE", 32)
	cfg.ChallengeNonceSize = getEnvInt("PRESENCED_CHALLENGE_NONCE_SIZE", 16)
	cfg.RSSIWeakThreshold = getEnvInt("PRESENCED_RSSI_WEAK", -70)
	cfg.RSSIMediumThreshold = getEnvInt("PRESENCED_RSSI_MEDIUM", -50)
	cfg.ResponseSuspiciousFastMs = getEnvInt("PRESENCED_RESPONSE_FAST_MS", 200)
	cfg.ResponseMinHumanMs = getEnvInt("PRESENCED_RESPONSE_HUMAN_MS", 500)
	cfg.ResponseMaxReasonableMs = getEnvInt("PRESENCED_RESPONSE_MAX_MS", 10000)
	cfg.LocationJumpDistanceM = getEnvFloat("PRESENCED_LOCATION_JUMP_M", 1000)
	cfg.LocationMinMovementTimeMs = getEnvInt("PRESENCED_LOCATION_MIN_MOVE_MS", 30000)
	cfg.LocationTTLSec = getEnvInt("PRESENCED_LOCATION_TTL_SEC", 3600)
	cfg.WifiMinExpected = getEnvInt("PRESENCED_WIFI_MIN", 1)
	cfg.WifiMaxReasonable = getEnvInt("PRESENCED_WIFI_MAX", 20)
	cfg.BehavioralAlpha = getEnvFloat("PRESENCED_BEHAVIORAL_ALPHA", 0.2)
	cfg.AnalysisTTLSec = getEnvInt("PRESENCED_ANALYSIS_TTL_SEC", 604800)

	wifiBlacklist := getEnv("PRESENCED_WIFI_BLACKLIST",
		"MOCK_WIFI,TEST_AP,FAKE_NETWORK,EMULATOR_WIFI,SIMULATOR_AP,DEBUG_WIFI,PROXY_NETWORK")
	attestationBlacklist := getEnv("PRESENCED_ATTESTATION_BLACKLIST", "rooted,jailbroken,emulator")
	overrideActors := getEnv("PRESENCED_OVERRIDE_ACTORS", "")

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite attendance database")
	flag.StringVar(&cfg.RedisAddr, "redis", cfg.RedisAddr, "Redis address for the evidence store (empty for in-memory)")
	flag.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run in mock mode (synthetic responses)")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")
	flag.IntVar(&cfg.ChallengeValidityMs, "validity", cfg.ChallengeValidityMs, "Challenge validity window in milliseconds")

	flag.Parse()

	cfg.WifiBlacklist = splitList(wifiBlacklist)
	cfg.AttestationBlacklist = splitList(attestationBlacklist)
	cfg.OverrideActors = splitList(overrideActors)
	cfg.Secret = loadSecret()

	return cfg
}

// loadSecret reads the MAC secret from PRESENCED_SECRET or, preferably, a
// file named by PRESENCED_SECRET_FILE. Missing secrets surface later as a
// configuration error from the engine.
func loadSecret() []byte {
	if path, ok := os.LookupEnv("PRESENCED_SECRET_FILE"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("Warning: could not read secret file: %v", err)
			return nil
		}
		return []byte(strings.TrimSpace(string(data)))
	}
	if v, ok := os.LookupEnv("PRESENCED_SECRET"); ok {
		return []byte(v)
	}
	return nil
}

// Engine maps the flat application config onto the engine's config value.
func (c *Config) Engine() (engine.Config, error) {
	if len(c.Secret) == 0 {
		return engine.Config{}, fmt.Errorf("%w: no secret configured (set PRESENCED_SECRET or PRESENCED_SECRET_FILE)", domain.ErrConfiguration)
	}

	ec := engine.DefaultConfig()
	ec.Secret = c.Secret
	ec.ChallengeValidity = time.Duration(c.ChallengeValidityMs) * time.Millisecond
	ec.CodeSize = c.ChallengeCodeSize
	ec.NonceSize = c.ChallengeNonceSize
	ec.Analyzer = analyzer.Config{
		RSSIWeakThreshold:   c.RSSIWeakThreshold,
		RSSIMediumThreshold: c.RSSIMediumThreshold,
		SuspiciousFastMs:    int64(c.ResponseSuspiciousFastMs),
		MinHumanMs:          int64(c.ResponseMinHumanMs),
		MaxReasonableMs:     int64(c.ResponseMaxReasonableMs),
		ChallengeValidity:   ec.ChallengeValidity,
		JumpDistanceM:       c.LocationJumpDistanceM,
		MinMovementTime:     time.Duration(c.LocationMinMovementTimeMs) * time.Millisecond,
		LocationTTL:         time.Duration(c.LocationTTLSec) * time.Second,
		WifiMinExpected:     c.WifiMinExpected,
		WifiMaxReasonable:   c.WifiMaxReasonable,
		WifiBlacklist:       c.WifiBlacklist,
		AttestationTokens:   c.AttestationBlacklist,
		BehavioralAlpha:     c.BehavioralAlpha,
		AnalysisTTL:         time.Duration(c.AnalysisTTLSec) * time.Second,
		DeviceBindingTTL:    time.Duration(c.AnalysisTTLSec) * time.Second,
	}
	return ec, nil
}

// Zeroize clears the secret bytes. Call on teardown.
func (c *Config) Zeroize() {
	for i := range c.Secret {
		c.Secret[i] = 0
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "presenced.db"
	}

	dir := filepath.Join(home, ".presenced")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .presenced directory, using current dir: %v", err)
		return "presenced.db"
	}

	return filepath.Join(dir, "presenced.db")
}
