package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/melisync/melisync/internal/logging"
	"github.com/melisync/melisync/internal/metrics"
	"github.com/melisync/melisync/internal/models"
	"github.com/melisync/melisync/internal/store"
)

// Exchanger trades a refresh token for an access grant.
type Exchanger interface {
	Exchange(ctx context.Context, account string, creds models.Credentials, refreshToken string) (*models.AccessGrant, error)
}

// RotationState is the phase of an account's credential rotation.
type RotationState string

const (
	RotationIdle     RotationState = "idle"
	RotationRotating RotationState = "rotating"
	RotationRotated  RotationState = "rotated"
	RotationFailed   RotationState = "failed"
)

// RotationStatus describes the last rotation of one account.
type RotationStatus struct {
	State         RotationState `json:"state"`
	LastOutcome   RotationState `json:"last_outcome,omitempty"`
	LastRotatedAt time.Time     `json:"last_rotated_at,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	// PersistError is set when the new token is live in memory but could
	// not be written to durable storage.
	PersistError string `json:"persist_error,omitempty"`
}

// persistTimeout bounds the durable write that follows a successful exchange.
const persistTimeout = 10 * time.Second

// Rotator owns the refresh token of every account during a rotation.
// A successful exchange invalidates the previous token upstream, so the new
// one is installed in memory first and then persisted before Rotate returns.
type Rotator struct {
	exchanger Exchanger
	tokens    store.TokenStore
	logger    *logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu       sync.RWMutex
	statuses map[string]RotationStatus
	// onTransition observes state changes; used by tests.
	onTransition func(account string, state RotationState)
}

// NewRotator creates a rotator persisting tokens to the given store.
func NewRotator(exchanger Exchanger, tokens store.TokenStore, logger *logging.Logger, m *metrics.Metrics) *Rotator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Rotator{
		exchanger: exchanger,
		tokens:    tokens,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
		statuses:  make(map[string]RotationStatus),
	}
}

// Restore replaces each account's seed token with the persisted one when
// present. Lookup failures keep the seed. It returns how many were restored.
func (r *Rotator) Restore(ctx context.Context, accounts models.AccountList) int {
	restored := 0
	for _, acc := range accounts {
		tok, err := r.tokens.LoadToken(ctx, acc.Name)
		if err != nil {
			r.logger.WarnWithContext(ctx, "failed to load persisted token, using seed", "account", acc.Name, "error", err.Error())
			continue
		}
		if tok == nil || tok.RefreshToken == "" {
			r.logger.DebugWithContext(ctx, "no persisted token, using seed", "account", acc.Name)
			continue
		}
		acc.SetRefreshToken(tok.RefreshToken)
		restored++
		r.logger.InfoWithContext(ctx, "restored persisted token", "account", acc.Name)
	}
	return restored
}

// Rotate exchanges the account's cached refresh token. On failure the cached
// token is untouched and nothing is persisted. A failed persistence write after
// a successful exchange is logged and recorded but does not fail the rotation.
func (r *Rotator) Rotate(ctx context.Context, acc *models.Account) (*models.AccessGrant, error) {
	r.transition(acc.Name, RotationRotating, nil)

	grant, err := r.exchanger.Exchange(ctx, acc.Name, acc.Credentials(), acc.RefreshToken())
	if err != nil {
		r.transition(acc.Name, RotationFailed, func(s *RotationStatus) {
			s.LastOutcome = RotationFailed
			s.LastError = err.Error()
		})
		r.recordRotation(acc.Name, "failed")
		r.transition(acc.Name, RotationIdle, nil)
		return nil, err
	}

	acc.SetRefreshToken(grant.RefreshToken)
	now := r.now()
	r.transition(acc.Name, RotationRotated, func(s *RotationStatus) {
		s.LastOutcome = RotationRotated
		s.LastRotatedAt = now
		s.LastError = ""
	})
	r.recordRotation(acc.Name, "rotated")

	persistErr := r.persist(ctx, acc.Name, grant, now)
	r.transition(acc.Name, RotationIdle, func(s *RotationStatus) {
		s.PersistError = ""
		if persistErr != nil {
			s.PersistError = persistErr.Error()
		}
	})

	return grant, nil
}

func (r *Rotator) persist(ctx context.Context, account string, grant *models.AccessGrant, now time.Time) error {
	// The old token is already dead upstream; finish the write even if the cycle is cancelled.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	err := r.tokens.SaveToken(ctx, models.NewPersistedToken(account, grant, now))
	if err != nil {
		r.logger.ErrorWithContext(ctx, "failed to persist rotated token", "account", account, "error", err.Error())
		r.recordRotation(account, "persist_failed")
		if r.metrics != nil {
			r.metrics.RecordError("token_persist", "rotator")
		}
		return err
	}
	r.logger.DebugWithContext(ctx, "persisted rotated token", "account", account)
	return nil
}

func (r *Rotator) transition(account string, state RotationState, update func(*RotationStatus)) {
	r.mu.Lock()
	s := r.statuses[account]
	s.State = state
	if update != nil {
		update(&s)
	}
	r.statuses[account] = s
	hook := r.onTransition
	r.mu.Unlock()

	if hook != nil {
		hook(account, state)
	}
}

func (r *Rotator) recordRotation(account, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordTokenRotation(account, outcome)
	}
}

// Status returns the rotation status of an account.
func (r *Rotator) Status(account string) RotationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.statuses[account]
	if !ok {
		return RotationStatus{State: RotationIdle}
	}
	return s
}

// Statuses returns a copy of every known rotation status.
func (r *Rotator) Statuses() map[string]RotationStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]RotationStatus, len(r.statuses))
	for k, v := range r.statuses {
		out[k] = v
	}
	return out
}
