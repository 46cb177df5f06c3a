// Package services contains the application services of the vault client.
// This file defines access control: PIN login, idle-timeout locking, PIN
// rotation and the tamper kill-switch.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/dmitrijs2005/aegislink/internal/client/models"
	"github.com/dmitrijs2005/aegislink/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/aegislink/internal/common"
	"github.com/dmitrijs2005/aegislink/internal/cryptox"
	"github.com/dmitrijs2005/aegislink/internal/dbx"
	"github.com/dmitrijs2005/aegislink/internal/logging"
	"github.com/google/uuid"
)

// DefaultIdleTimeout is how long an unlocked session survives without activity.
const DefaultIdleTimeout = 5 * time.Minute

// DefaultPins are written by ProvisionDefaults on first run.
var DefaultPins = map[models.Role]string{
	models.RoleUserA: "0000",
	models.RoleUserB: "1111",
}

// State is the session state of an AccessControl.
type State int

const (
	StateNoSession State = iota
	StateUnlocked
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateNoSession:
		return "no session"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// LockReason tells an OnLock hook why the session locked.
type LockReason string

const (
	LockReasonIdle   LockReason = "idle"
	LockReasonManual LockReason = "manual"
)

// AccessService gates the vault behind a PIN.
//
// Contract:
//   - Login: (true, nil) on a matching PIN, (false, nil) on a wrong one.
//     A failed login never changes the current session.
//   - Logout/Lock/SetTamper/Touch never fail.
//   - ChangePin: needs an unlocked session, the current PIN and a 4-character new PIN.
//   - SessionKey: the channel key, only while a session is unlocked and no
//     tamper was reported.
type AccessService interface {
	ProvisionDefaults(ctx context.Context) (bool, error)
	Login(ctx context.Context, role models.Role, pin string) (bool, error)
	Logout()
	Lock()
	ChangePin(ctx context.Context, oldPin, newPin string) (bool, error)
	SetTamper()
	Touch()
	Close()

	Session() (models.Session, bool)
	SessionKey() (string, error)
	IsLocked() bool
	Tampered() bool
	State() State
	OnLock(fn func(LockReason))
}

// AccessControl is the AccessService backed by the local SQLite credential
// store. It is safe for concurrent use.
type AccessControl struct {
	db          *sql.DB
	repos       credentials.Factory
	clock       clock.Clock
	logger      logging.Logger
	idleTimeout time.Duration

	// credMu serializes credential read-compare-write sequences.
	credMu sync.Mutex

	mu         sync.Mutex
	session    *models.Session
	sessionKey string
	locked     bool
	tampered   bool
	closed     bool
	timer      *clock.Timer
	timerGen   uint64
	onLock     func(LockReason)
}

type AccessOption func(*AccessControl)

func WithClock(c clock.Clock) AccessOption {
	return func(a *AccessControl) { a.clock = c }
}

// WithRepository replaces the SQLite credential repository.
func WithRepository(f credentials.Factory) AccessOption {
	return func(a *AccessControl) { a.repos = f }
}

func WithLogger(l logging.Logger) AccessOption {
	return func(a *AccessControl) { a.logger = l }
}

// WithIdleTimeout overrides DefaultIdleTimeout. Non-positive values are ignored.
func WithIdleTimeout(d time.Duration) AccessOption {
	return func(a *AccessControl) {
		if d > 0 {
			a.idleTimeout = d
		}
	}
}

// NewAccessControl binds access control to an initialized vault database
// (see client.InitDatabase).
func NewAccessControl(db *sql.DB, opts ...AccessOption) *AccessControl {
	a := &AccessControl{
		db:          db,
		repos:       credentials.NewSQLiteFactory(),
		clock:       clock.New(),
		logger:      logging.NewNopLogger(),
		idleTimeout: DefaultIdleTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	a.logger = a.logger.With("module", "access")
	return a
}

func wrapChannelKey(channelKey, pin string) (*credentials.WrappedKey, error) {
	salt := common.GenerateRandByteArray(16)
	kek := cryptox.DeriveWrappingKey([]byte(pin), salt)
	defer common.WipeByteArray(kek)

	env, err := cryptox.Encrypt(channelKey, cryptox.Encode(kek))
	if err != nil {
		return nil, err
	}
	return &credentials.WrappedKey{Salt: salt, Key: env}, nil
}

func unwrapChannelKey(wk *credentials.WrappedKey, pin string) (string, error) {
	kek := cryptox.DeriveWrappingKey([]byte(pin), wk.Salt)
	defer common.WipeByteArray(kek)

	return cryptox.Decrypt(wk.Key.Data, wk.Key.IV, cryptox.Encode(kek))
}

func pinsEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ProvisionDefaults is the explicit first-run step: it stores DefaultPins
// and a fresh channel key wrapped for every role. It reports whether
// anything was written. A store where only some records exist is reported
// as common.ErrorCredentialStoreInconsistent instead of being patched over.
func (a *AccessControl) ProvisionDefaults(ctx context.Context) (bool, error) {
	a.credMu.Lock()
	defer a.credMu.Unlock()

	provisioned := false

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repos(tx)

		present, missing := 0, 0
		for _, role := range models.Roles {
			for _, check := range []func() error{
				func() error { _, err := repo.GetPin(ctx, role); return err },
				func() error { _, err := repo.GetWrappedKey(ctx, role); return err },
			} {
				switch err := check(); {
				case err == nil:
					present++
				case errors.Is(err, common.ErrorNotFound):
					missing++
				default:
					return err
				}
			}
		}

		if missing == 0 {
			return nil
		}
		if present > 0 {
			return common.ErrorCredentialStoreInconsistent
		}

		channelKey, err := cryptox.GenerateMasterKey()
		if err != nil {
			return err
		}

		for _, role := range models.Roles {
			pin := DefaultPins[role]
			wk, err := wrapChannelKey(channelKey, pin)
			if err != nil {
				return err
			}
			if err := repo.SetPin(ctx, role, pin); err != nil {
				return err
			}
			if err := repo.SetWrappedKey(ctx, role, wk); err != nil {
				return err
			}
		}
		provisioned = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("provision credentials: %w", err)
	}

	if provisioned {
		a.logger.Info(ctx, "default credentials provisioned")
	}
	return provisioned, nil
}

// Login checks pin against the stored PIN of role. On a match it starts a
// new session for role (replacing any current one, even for another role),
// clears the lock and arms the idle timer.
func (a *AccessControl) Login(ctx context.Context, role models.Role, pin string) (bool, error) {
	if !role.Valid() {
		return false, common.ErrUnknownRole
	}

	a.credMu.Lock()
	defer a.credMu.Unlock()

	repo := a.repos(a.db)

	stored, err := repo.GetPin(ctx, role)
	if errors.Is(err, common.ErrorNotFound) {
		return false, common.ErrCredentialsNotProvisioned
	}
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}

	if !pinsEqual(pin, stored) {
		a.logger.Warn(ctx, "login failed", "role", role)
		return false, nil
	}

	wk, err := repo.GetWrappedKey(ctx, role)
	if errors.Is(err, common.ErrorNotFound) {
		return false, common.ErrCredentialsNotProvisioned
	}
	if err != nil {
		return false, fmt.Errorf("login: %w", err)
	}

	key, err := unwrapChannelKey(wk, pin)
	if err != nil {
		return false, fmt.Errorf("%w: %v", common.ErrorCredentialStoreInconsistent, err)
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		Role:      role,
		KeyRef:    cryptox.Fingerprint(key),
		CreatedAt: a.clock.Now(),
	}

	a.mu.Lock()
	a.session = session
	a.sessionKey = key
	a.locked = false
	a.armTimerLocked()
	a.mu.Unlock()

	a.logger.Info(ctx, "login", "role", role, "session", session.ID)
	return true, nil
}

// Logout ends the session unconditionally and clears the lock.
func (a *AccessControl) Logout() {
	a.mu.Lock()
	session := a.session
	a.stopTimerLocked()
	a.session = nil
	a.sessionKey = ""
	a.locked = false
	a.mu.Unlock()

	if session != nil {
		a.logger.Info(context.Background(), "logout", "role", session.Role, "session", session.ID)
	}
}

// Lock locks the current session without ending it. Without a session, or
// when already locked, it does nothing.
func (a *AccessControl) Lock() {
	a.lock(LockReasonManual, nil)
}

// lock locks the session. A non-nil gen must match the current timer
// generation, which filters out idle callbacks that lost a race with
// Touch, Lock or Logout.
func (a *AccessControl) lock(reason LockReason, gen *uint64) {
	a.mu.Lock()
	if a.session == nil || a.locked || (gen != nil && *gen != a.timerGen) {
		a.mu.Unlock()
		return
	}
	a.locked = true
	a.stopTimerLocked()
	session := *a.session
	hook := a.onLock
	a.mu.Unlock()

	a.logger.Info(context.Background(), "session locked", "role", session.Role, "session", session.ID, "reason", reason)
	if hook != nil {
		hook(reason)
	}
}

// ChangePin replaces the PIN of the session role. It returns (false, nil)
// without touching the store when there is no unlocked session, oldPin is
// wrong, or newPin is not exactly 4 characters. The channel key is re-wrapped
// under newPin in the same transaction. A session that ends or locks before
// the write leaves the store untouched.
func (a *AccessControl) ChangePin(ctx context.Context, oldPin, newPin string) (bool, error) {
	// Login replaces the session under credMu.
	a.credMu.Lock()
	defer a.credMu.Unlock()

	a.mu.Lock()
	if a.session == nil || a.locked {
		a.mu.Unlock()
		return false, nil
	}
	sessionID := a.session.ID
	role := a.session.Role
	key := a.sessionKey
	a.mu.Unlock()

	if utf8.RuneCountInString(newPin) != common.PinLength {
		a.logger.Warn(ctx, "pin change rejected", "role", role, "reason", common.ErrorIncorrectPinFormat)
		return false, nil
	}

	changed := false
	reason := "current pin mismatch"
	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.repos(tx)

		stored, err := repo.GetPin(ctx, role)
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrCredentialsNotProvisioned
		}
		if err != nil {
			return err
		}
		if !pinsEqual(oldPin, stored) {
			return nil
		}
		if !a.sessionActive(sessionID) {
			reason = "session ended"
			return nil
		}

		wk, err := wrapChannelKey(key, newPin)
		if err != nil {
			return err
		}
		if err := repo.SetPin(ctx, role, newPin); err != nil {
			return err
		}
		if err := repo.SetWrappedKey(ctx, role, wk); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("change pin: %w", err)
	}

	if changed {
		a.logger.Info(ctx, "pin changed", "role", role)
	} else {
		a.logger.Warn(ctx, "pin change rejected", "role", role, "reason", reason)
	}
	return changed, nil
}

// sessionActive reports whether the session with id is still current and unlocked.
func (a *AccessControl) sessionActive(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session != nil && a.session.ID == id && !a.locked
}

// SetTamper raises the tamper flag for the rest of the process lifetime.
// Sessions and credentials are left as they are; consumers must go inert.
func (a *AccessControl) SetTamper() {
	a.mu.Lock()
	already := a.tampered
	a.tampered = true
	a.mu.Unlock()

	if !already {
		a.logger.Error(context.Background(), "tamper detected")
	}
}

// Touch is the activity signal. With an unlocked session it pushes the idle
// deadline to now + idle timeout; otherwise it does nothing. It never unlocks.
func (a *AccessControl) Touch() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.armTimerLocked()
}

// Close disposes of the idle timer. No timer is armed afterwards.
func (a *AccessControl) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	a.stopTimerLocked()
}

// OnLock registers fn to run after every lock transition. It replaces any
// previous hook. fn runs outside internal locks.
func (a *AccessControl) OnLock(fn func(LockReason)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLock = fn
}

func (a *AccessControl) Session() (models.Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return models.Session{}, false
	}
	return *a.session, true
}

// SessionKey returns the channel key of the current session. It fails with
// common.ErrTampered, common.ErrNoSession or common.ErrLocked, in that order.
func (a *AccessControl) SessionKey() (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.tampered:
		return "", common.ErrTampered
	case a.session == nil:
		return "", common.ErrNoSession
	case a.locked:
		return "", common.ErrLocked
	}
	return a.sessionKey, nil
}

func (a *AccessControl) IsLocked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

func (a *AccessControl) Tampered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tampered
}

func (a *AccessControl) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.session == nil:
		return StateNoSession
	case a.locked:
		return StateLocked
	default:
		return StateUnlocked
	}
}

// armTimerLocked replaces the idle deadline. At most one timer is pending.
func (a *AccessControl) armTimerLocked() {
	a.stopTimerLocked()
	if a.closed || a.session == nil || a.locked {
		return
	}
	gen := a.timerGen
	a.timer = a.clock.AfterFunc(a.idleTimeout, func() {
		a.lock(LockReasonIdle, &gen)
	})
}

// stopTimerLocked cancels the pending deadline, if any, and bumps the
// generation so a callback that already fired is ignored.
func (a *AccessControl) stopTimerLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.timerGen++
}
