package models

import "time"

// AccessGrant is the short-lived result of a refresh-token exchange.
// It is consumed by the order fetch and discarded after the cycle.
type AccessGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// PersistedToken is the durable copy of an account's latest credentials.
type PersistedToken struct {
	AccountName          string    `json:"account_name"`
	RefreshToken         string    `json:"refresh_token"`
	AccessToken          string    `json:"access_token,omitempty"`
	AccessTokenExpiresAt time.Time `json:"access_token_expires_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// NewPersistedToken builds the durable record for a grant.
func NewPersistedToken(accountName string, grant *AccessGrant, now time.Time) PersistedToken {
	return PersistedToken{
		AccountName:          accountName,
		RefreshToken:         grant.RefreshToken,
		AccessToken:          grant.AccessToken,
		AccessTokenExpiresAt: grant.ExpiresAt.UTC(),
		UpdatedAt:            now.UTC(),
	}
}
