package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
)

// ConfigFileEnv names the optional YAML file whose values override the
// environment.
const ConfigFileEnv = "AUTH_CONFIG_FILE"

// RelyingPartyConfig is one credential scope.
type RelyingPartyConfig struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Origins []string `yaml:"origins"`
}

type Config struct {
	Issuer string `yaml:"issuer"` // issuer claim for tokens (default: hoa)

	Algorithm     string `yaml:"algorithm"`       // asymmetric signing algorithm: EdDSA, ES256 or RS256 (default: EdDSA)
	RSABits       int    `yaml:"rsa_bits"`        // key size for RS256 (default: 2048)
	TokenFamily   string `yaml:"token_family"`    // key family tokens are signed with (default: asymmetric)
	MasterKeyPath string `yaml:"master_key_path"` // file holding the key that seals private keys at rest
	DatabaseFile  string `yaml:"database_file"`   // SQLite database (default: ./hoa.db)
	PepperFile    string `yaml:"pepper_file"`     // shared secret pepper, created on first start (default: ./pepper)

	AccessTTL      time.Duration `yaml:"access_ttl"`       // default: 1h
	RefreshTTL     time.Duration `yaml:"refresh_ttl"`      // default: 30 days
	ChallengeTTL   time.Duration `yaml:"challenge_ttl"`    // default: 5m
	KeyRotateAfter time.Duration `yaml:"key_rotate_after"` // default: 30 days
	KeyGracePeriod time.Duration `yaml:"key_grace_period"` // verification window after rotation (default: 30 days)
	TokenLeeway    time.Duration `yaml:"token_leeway"`     // clock skew tolerated on exp/nbf/iat (default: 0)

	// BootstrapToken lets the first admin be granted over HTTP while no
	// enabled admin exists. Empty disables the route.
	BootstrapToken string `yaml:"bootstrap_token"`

	RequireApproval         bool `yaml:"require_approval"`
	AllowNoneAttestation    bool `yaml:"allow_none_attestation"`
	RequireUserVerification bool `yaml:"require_user_verification"`

	RelyingParties []RelyingPartyConfig `yaml:"relying_parties"`

	Env                  string        `yaml:"env"`        // dev, staging, prod (default: dev)
	LogLevel             string        `yaml:"log_level"`  // debug, info, warn, error (default: info)
	LogFormat            string        `yaml:"log_format"` // json, text (default: json)
	Port                 int           `yaml:"port"`       // default: 8080
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	HousekeepingInterval time.Duration `yaml:"housekeeping_interval"`
}

// LoadConfig reads the environment and then, when AUTH_CONFIG_FILE is set,
// overlays the YAML file on top.
func LoadConfig() (Config, error) {
	cfg := Config{
		Issuer:        getEnvOrDefault("AUTH_ISSUER", "hoa"),
		Algorithm:     getEnvOrDefault("AUTH_ALGORITHM", "EdDSA"),
		RSABits:       getEnvIntOrDefault("AUTH_RSA_BITS", 0),
		TokenFamily:   getEnvOrDefault("AUTH_TOKEN_FAMILY", string(domain.FamilyAsymmetric)),
		MasterKeyPath: os.Getenv("AUTH_MASTER_KEY_PATH"),
		DatabaseFile:  getEnvOrDefault("AUTH_DATABASE_FILE", "hoa.db"),
		PepperFile:    getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		AccessTTL:      getEnvDurationOrDefault("AUTH_ACCESS_TTL", service.DefaultAccessTTL),
		RefreshTTL:     getEnvDurationOrDefault("AUTH_REFRESH_TTL", service.DefaultRefreshTTL),
		ChallengeTTL:   getEnvDurationOrDefault("AUTH_CHALLENGE_TTL", service.DefaultChallengeTTL),
		KeyRotateAfter: getEnvDurationOrDefault("AUTH_KEY_ROTATE_AFTER", service.DefaultRotateAfter),
		KeyGracePeriod: getEnvDurationOrDefault("AUTH_KEY_GRACE_PERIOD", service.DefaultVerifyGrace),
		TokenLeeway:    getEnvDurationOrDefault("AUTH_TOKEN_LEEWAY", 0),
		BootstrapToken: os.Getenv("AUTH_BOOTSTRAP_TOKEN"),

		RequireApproval:         getEnvBoolOrDefault("AUTH_REQUIRE_APPROVAL", false),
		AllowNoneAttestation:    getEnvBoolOrDefault("AUTH_ALLOW_NONE_ATTESTATION", true),
		RequireUserVerification: getEnvBoolOrDefault("AUTH_REQUIRE_USER_VERIFICATION", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	if raw := os.Getenv("AUTH_RELYING_PARTIES"); raw != "" {
		rps, err := ParseRelyingParties(raw)
		if err != nil {
			return Config{}, err
		}
		cfg.RelyingParties = rps
	}

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	return cfg, cfg.Validate()
}

// loadFile decodes path over cfg. Keys absent from the file keep their
// current value.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports the first setting the service cannot start with.
func (c Config) Validate() error {
	if len(c.RelyingParties) == 0 {
		return errors.New("config: at least one relying party is required (AUTH_RELYING_PARTIES or relying_parties)")
	}
	for _, rp := range c.RelyingParties {
		if rp.ID == "" || len(rp.Origins) == 0 {
			return fmt.Errorf("config: relying party %q needs an id and at least one origin", rp.ID)
		}
	}
	if !domain.KeyFamily(c.TokenFamily).Valid() {
		return fmt.Errorf("config: unknown token family %q", c.TokenFamily)
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= 0 || c.ChallengeTTL <= 0 {
		return errors.New("config: token and challenge lifetimes must be positive")
	}
	if c.TokenLeeway < 0 {
		return errors.New("config: token leeway must not be negative")
	}
	return nil
}

// Parties converts the configured relying parties for the ceremony service.
func (c Config) Parties() service.RelyingParties {
	rps := make([]domain.RelyingParty, len(c.RelyingParties))
	for i, rp := range c.RelyingParties {
		name := rp.Name
		if name == "" {
			name = rp.ID
		}
		rps[i] = domain.RelyingParty{ID: rp.ID, Name: name, Origins: rp.Origins}
	}
	return service.NewRelyingParties(rps...)
}

// ParseRelyingParties parses "id|name|origin1;origin2" entries separated by
// commas.
func ParseRelyingParties(raw string) ([]RelyingPartyConfig, error) {
	var out []RelyingPartyConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("config: relying party %q must be id|name|origins", entry)
		}

		rp := RelyingPartyConfig{
			ID:   strings.TrimSpace(parts[0]),
			Name: strings.TrimSpace(parts[1]),
		}
		for _, origin := range strings.Split(parts[2], ";") {
			if origin = strings.TrimSpace(origin); origin != "" {
				rp.Origins = append(rp.Origins, origin)
			}
		}
		if rp.ID == "" || len(rp.Origins) == 0 {
			return nil, fmt.Errorf("config: relying party %q needs an id and at least one origin", entry)
		}
		out = append(out, rp)
	}
	return out, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
