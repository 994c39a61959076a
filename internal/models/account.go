package models

import (
	"fmt"
	"sync"
)

// Account is a marketplace seller account with its rotating refresh token.
// The refresh token is the only mutable field; the rest is fixed at startup.
type Account struct {
	Name      string `json:"name"`
	Empresa   string `json:"empresa"`
	UserID    string `json:"user_id"`
	AppID     string `json:"app_id"`
	SecretKey string `json:"-"`

	mu           sync.RWMutex
	refreshToken string
}

// NewAccount builds an account seeded with the given refresh token.
func NewAccount(name, empresa, userID, appID, secretKey, seedToken string) *Account {
	if empresa == "" {
		empresa = name
	}
	return &Account{
		Name:         name,
		Empresa:      empresa,
		UserID:       userID,
		AppID:        appID,
		SecretKey:    secretKey,
		refreshToken: seedToken,
	}
}

// Validate checks that the account can be used for a sync.
func (a *Account) Validate() error {
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if a.AppID == "" {
		return fmt.Errorf("app id is required for %s", a.Name)
	}
	if a.SecretKey == "" {
		return fmt.Errorf("secret key is required for %s", a.Name)
	}
	if a.UserID == "" {
		return fmt.Errorf("user id is required for %s", a.Name)
	}
	if a.RefreshToken() == "" {
		return fmt.Errorf("refresh token is required for %s", a.Name)
	}
	return nil
}

// RefreshToken returns the currently cached refresh token.
func (a *Account) RefreshToken() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.refreshToken
}

// SetRefreshToken replaces the cached refresh token.
func (a *Account) SetRefreshToken(token string) {
	a.mu.Lock()
	a.refreshToken = token
	a.mu.Unlock()
}

// Credentials returns the client credentials used for the token exchange.
func (a *Account) Credentials() Credentials {
	return Credentials{ClientID: a.AppID, ClientSecret: a.SecretKey}
}

// Credentials identifies the marketplace application an account belongs to.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// AccountList is an ordered collection of accounts.
type AccountList []*Account

// FindByName returns an account by name.
func (al AccountList) FindByName(name string) (*Account, bool) {
	for _, a := range al {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Empresas returns the display labels in iteration order.
func (al AccountList) Empresas() []string {
	out := make([]string, 0, len(al))
	for _, a := range al {
		out = append(out, a.Empresa)
	}
	return out
}
