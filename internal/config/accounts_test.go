package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setAccountEnv(t *testing.T, name, appID, secret, refresh, userID string) {
	t.Helper()
	t.Setenv("MELI_"+name+"_APP_ID", appID)
	t.Setenv("MELI_"+name+"_SECRET_KEY", secret)
	t.Setenv("MELI_"+name+"_REFRESH_TOKEN", refresh)
	t.Setenv("MELI_"+name+"_USER_ID", userID)
}

func TestDiscoverAccounts(t *testing.T) {
	setAccountEnv(t, "ZETA", "app-z", "sec-z", "TG-z", "3")
	setAccountEnv(t, "ALPHA", "app-a", "sec-a", "TG-a", "1")
	setAccountEnv(t, "BROKEN", "app-b", "", "TG-b", "2")
	t.Setenv("ACCOUNT_ALPHA_EMPRESA", "Alpha Ltda")

	d, err := DiscoverAccounts()
	require.NoError(t, err)

	require.Len(t, d.Accounts, 2)
	assert.Equal(t, "ALPHA", d.Accounts[0].Name)
	assert.Equal(t, "Alpha Ltda", d.Accounts[0].Empresa)
	assert.Equal(t, "app-a", d.Accounts[0].AppID)
	assert.Equal(t, "TG-a", d.Accounts[0].RefreshToken)
	assert.Equal(t, "1", d.Accounts[0].UserID)

	assert.Equal(t, "ZETA", d.Accounts[1].Name)
	assert.Equal(t, "ZETA", d.Accounts[1].Empresa)

	assert.Equal(t, []string{"BROKEN"}, d.Skipped)
}

func TestDiscoverNames(t *testing.T) {
	names, unsupported := discoverNames([]string{
		"MELI_B_APP_ID=1",
		"MELI_A_APP_ID=2",
		"MELI_A_SECRET_KEY=x",
		"MELI__APP_ID=3",
		"MELI_lower_APP_ID=4",
		"OTHER=1",
		"MALFORMED",
	})
	assert.Equal(t, []string{"A", "B"}, names)
	assert.Equal(t, []string{"lower"}, unsupported)
}

func TestDiscoverAccounts_ReportsMixedCaseNames(t *testing.T) {
	setAccountEnv(t, "Loja", "app-l", "sec-l", "TG-l", "9")

	d, err := DiscoverAccounts()
	require.NoError(t, err)

	for _, a := range d.Accounts {
		assert.NotEqual(t, "Loja", a.Name)
	}
	assert.Contains(t, d.Unsupported, "Loja")
}

func TestMergeAccounts(t *testing.T) {
	discovered := []AccountConfig{{Name: "A", AppID: "env"}}
	declared := []AccountConfig{{Name: "A", AppID: "yaml"}, {Name: "C", AppID: "yaml"}}

	merged := MergeAccounts(discovered, declared)
	require.Len(t, merged, 2)
	assert.Equal(t, "env", merged[0].AppID)
	assert.Equal(t, "C", merged[1].Name)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****7890", MaskSecret("1234567890"))
}
