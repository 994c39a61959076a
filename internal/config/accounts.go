package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// meliAccountEnv holds the MELI_{NAME}_* variables of one account.
type meliAccountEnv struct {
	AppID        string `envconfig:"APP_ID"`
	SecretKey    string `envconfig:"SECRET_KEY"`
	RefreshToken string `envconfig:"REFRESH_TOKEN"`
	UserID       string `envconfig:"USER_ID"`
}

// accountLabelEnv holds the ACCOUNT_{NAME}_* variables of one account.
type accountLabelEnv struct {
	Empresa string `envconfig:"EMPRESA"`
}

// Discovery is the outcome of scanning the environment for accounts.
type Discovery struct {
	Accounts []AccountConfig
	// Skipped lists account names found with incomplete credentials.
	Skipped []string
	// Unsupported lists names that are not upper-case and cannot be decoded.
	Unsupported []string
}

// DiscoverAccounts scans the environment for MELI_{NAME}_APP_ID variables and
// decodes each account's credentials. Names are returned sorted.
func DiscoverAccounts() (*Discovery, error) {
	names, unsupported := discoverNames(os.Environ())

	out := &Discovery{Unsupported: unsupported}
	for _, name := range names {
		var creds meliAccountEnv
		if err := envconfig.Process("MELI_"+name, &creds); err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}
		var label accountLabelEnv
		if err := envconfig.Process("ACCOUNT_"+name, &label); err != nil {
			return nil, fmt.Errorf("account %s: %w", name, err)
		}

		if creds.AppID == "" || creds.SecretKey == "" || creds.RefreshToken == "" || creds.UserID == "" {
			out.Skipped = append(out.Skipped, name)
			continue
		}

		empresa := label.Empresa
		if empresa == "" {
			empresa = name
		}
		out.Accounts = append(out.Accounts, AccountConfig{
			Name:         name,
			Empresa:      empresa,
			UserID:       creds.UserID,
			AppID:        creds.AppID,
			SecretKey:    creds.SecretKey,
			RefreshToken: creds.RefreshToken,
		})
	}

	return out, nil
}

// MergeAccounts returns env-discovered accounts followed by YAML accounts
// whose names were not discovered.
func MergeAccounts(discovered, declared []AccountConfig) []AccountConfig {
	seen := make(map[string]bool, len(discovered))
	merged := make([]AccountConfig, 0, len(discovered)+len(declared))
	for _, a := range discovered {
		seen[a.Name] = true
		merged = append(merged, a)
	}
	for _, a := range declared {
		if seen[a.Name] {
			continue
		}
		seen[a.Name] = true
		merged = append(merged, a)
	}
	return merged
}

// discoverNames returns the sorted upper-case account names and, separately,
// the names envconfig cannot decode.
func discoverNames(environ []string) ([]string, []string) {
	set := make(map[string]struct{})
	var unsupported []string
	for _, kv := range environ {
		key, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if !strings.HasPrefix(key, "MELI_") || !strings.HasSuffix(key, "_APP_ID") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(key, "MELI_"), "_APP_ID")
		if name == "" {
			continue
		}
		// envconfig upper-cases prefixes, so mixed-case names cannot be decoded.
		if name != strings.ToUpper(name) {
			unsupported = append(unsupported, name)
			continue
		}
		set[name] = struct{}{}
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	sort.Strings(unsupported)
	return names, unsupported
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}

// mask hides all but the last four characters of a secret.
func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return strings.Repeat("*", 4) + s[len(s)-4:]
}

// MaskSecret is exported for CLI output.
func MaskSecret(s string) string {
	return mask(s)
}
