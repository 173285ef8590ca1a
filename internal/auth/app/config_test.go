package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
)

func TestParseRelyingParties(t *testing.T) {
	t.Parallel()

	rps, err := ParseRelyingParties("a.example.com|A|https://a.example.com; https://www.a.example.com , b.example.com|B|https://b.example.com")
	require.NoError(t, err)
	require.Equal(t, []RelyingPartyConfig{
		{ID: "a.example.com", Name: "A", Origins: []string{"https://a.example.com", "https://www.a.example.com"}},
		{ID: "b.example.com", Name: "B", Origins: []string{"https://b.example.com"}},
	}, rps)

	for _, bad := range []string{"a.example.com", "a|b", "|A|https://a", "a|A| ; "} {
		_, err := ParseRelyingParties(bad)
		require.Error(t, err, bad)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("AUTH_RELYING_PARTIES", "svc.example.com|Service|https://svc.example.com")
	t.Setenv("AUTH_ACCESS_TTL", "15m")
	t.Setenv("AUTH_CHALLENGE_TTL", "2")
	t.Setenv("AUTH_REQUIRE_APPROVAL", "true")
	t.Setenv("AUTH_TOKEN_LEEWAY", "")
	t.Setenv("AUTH_BOOTSTRAP_TOKEN", "")
	t.Setenv("PORT", "not-a-port")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "hoa", cfg.Issuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
	require.Equal(t, service.DefaultRefreshTTL, cfg.RefreshTTL)
	require.True(t, cfg.RequireApproval)
	require.Equal(t, 8080, cfg.Port)
	require.Zero(t, cfg.TokenLeeway)
	require.Empty(t, cfg.BootstrapToken)

	rp, err := cfg.Parties().Lookup("svc.example.com")
	require.NoError(t, err)
	require.True(t, rp.AllowsOrigin("https://svc.example.com"))
}

func TestLoadConfigFileOverridesEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
issuer: https://auth.example.com
access_ttl: 30m
token_leeway: 45s
require_approval: true
relying_parties:
  - id: app.example.com
    origins: [https://app.example.com]
`), 0o600))

	t.Setenv(ConfigFileEnv, path)
	t.Setenv("AUTH_ISSUER", "from-env")
	t.Setenv("AUTH_RELYING_PARTIES", "svc.example.com|Service|https://svc.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com", cfg.Issuer)
	require.Equal(t, 30*time.Minute, cfg.AccessTTL)
	require.Equal(t, 45*time.Second, cfg.TokenLeeway)
	require.True(t, cfg.RequireApproval)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.RelyingParties, 1)

	// Name falls back to the id.
	rp, err := cfg.Parties().Lookup("app.example.com")
	require.NoError(t, err)
	require.Equal(t, "app.example.com", rp.Name)
}

func TestLoadConfigRequiresRelyingParty(t *testing.T) {
	t.Setenv("AUTH_RELYING_PARTIES", "")
	t.Setenv(ConfigFileEnv, "")

	_, err := LoadConfig()
	require.ErrorContains(t, err, "relying party")
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := Config{
		TokenFamily:    "asymmetric",
		AccessTTL:      time.Hour,
		RefreshTTL:     time.Hour,
		ChallengeTTL:   time.Minute,
		RelyingParties: []RelyingPartyConfig{{ID: "a", Origins: []string{"https://a"}}},
	}
	require.NoError(t, valid.Validate())

	bad := valid
	bad.TokenFamily = "quantum"
	require.Error(t, bad.Validate())

	bad = valid
	bad.AccessTTL = 0
	require.Error(t, bad.Validate())

	bad = valid
	bad.RelyingParties = []RelyingPartyConfig{{ID: "a"}}
	require.Error(t, bad.Validate())

	bad = valid
	bad.TokenLeeway = -time.Second
	require.Error(t, bad.Validate())
}

func TestLoadConfigTokenLeeway(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("AUTH_RELYING_PARTIES", "svc.example.com|Service|https://svc.example.com")
	t.Setenv("AUTH_TOKEN_LEEWAY", "30s")
	t.Setenv("AUTH_BOOTSTRAP_TOKEN", "let-me-in")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, cfg.TokenLeeway)
	require.Equal(t, "let-me-in", cfg.BootstrapToken)
}
