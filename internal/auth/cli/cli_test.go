package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/app"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
)

func setupEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AUTH_RELYING_PARTIES", "svc.example.com|Service|https://svc.example.com")
	t.Setenv("AUTH_DATABASE_FILE", filepath.Join(dir, "hoa.db"))
	t.Setenv("AUTH_PEPPER_FILE", filepath.Join(dir, "pepper"))
	t.Setenv(cryptox.MasterKeyEnv, "cli test master key")
	t.Setenv(app.ConfigFileEnv, "")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, "version", "-o", "json")
	require.NoError(t, err)

	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	require.Equal(t, app.BuildVersion, info["version"])
	require.NotEmpty(t, info["go_version"])
}

func TestKeysRotateAndList(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "keys", "rotate", "-o", "json")
	require.NoError(t, err)

	var key map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &key))
	require.Equal(t, "asymmetric", key["family"])
	require.Equal(t, "EdDSA", key["algorithm"])
	require.Equal(t, true, key["active"])
	require.NotContains(t, out, "PRIVATE")

	_, err = run(t, "keys", "rotate", "--family", "symmetric")
	require.NoError(t, err)

	out, err = run(t, "keys", "list", "-o", "json")
	require.NoError(t, err)

	var list struct {
		Keys []map[string]any `json:"keys"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Keys, 2)

	out, err = run(t, "keys", "list")
	require.NoError(t, err)
	require.Contains(t, out, key["kid"].(string))
	require.Contains(t, out, "HS256")
}

func TestKeysRotateUnknownFamily(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "keys", "rotate", "--family", "quantum")
	require.Error(t, err)
}

func TestMethodsCommands(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "methods", "pending")
	require.NoError(t, err)
	require.Equal(t, "No methods found\n", out)

	_, err = run(t, "methods", "approve", "01J0000000000000000000000")
	require.ErrorContains(t, err, "approver")

	_, err = run(t, "methods", "reject", "01J0000000000000000000000", "--approver", "nobody")
	require.Error(t, err)
}

func TestIdentitiesCommands(t *testing.T) {
	setupEnv(t)
	t.Setenv("AUTH_BOOTSTRAP_TOKEN", "")

	out, err := run(t, "identities", "list")
	require.NoError(t, err)
	require.Equal(t, "No identities found\n", out)

	_, err = run(t, "identities", "bootstrap")
	require.ErrorIs(t, err, service.ErrBootstrapDisabled)

	t.Setenv("AUTH_BOOTSTRAP_TOKEN", "let-me-in")
	out, err = run(t, "identities", "bootstrap", "--username", "root", "-o", "json")
	require.NoError(t, err)

	var admin map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &admin))
	require.Equal(t, "root", admin["username"])
	require.Equal(t, true, admin["is_admin"])
	id := admin["id"].(string)

	_, err = run(t, "identities", "bootstrap")
	require.ErrorIs(t, err, service.ErrAlreadyBootstrapped)

	for _, action := range []string{"demote", "disable", "enable", "promote"} {
		out, err = run(t, "identities", action, id)
		require.NoError(t, err, action)
		require.Equal(t, "identity "+id+" "+action+"d\n", out)
	}

	out, err = run(t, "identities", "list", "-o", "json")
	require.NoError(t, err)

	var list struct {
		Identities []map[string]any `json:"identities"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list.Identities, 1)
	require.Equal(t, true, list.Identities[0]["enabled"])
	require.Equal(t, true, list.Identities[0]["is_admin"])

	_, err = run(t, "identities", "promote", "01J0000000000000000000000")
	require.ErrorIs(t, err, service.ErrIdentityNotFound)
}

func TestConfigRequiresRelyingParty(t *testing.T) {
	setupEnv(t)
	t.Setenv("AUTH_RELYING_PARTIES", "")

	_, err := run(t, "keys", "list")
	require.ErrorContains(t, err, "relying party")
}

func TestUnknownOutputFormat(t *testing.T) {
	_, err := run(t, "version", "-o", "yaml")
	require.ErrorContains(t, err, "unknown output format")
}
