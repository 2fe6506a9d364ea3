// Package vault stores the secret pattern and the records around it: the
// enrollment flow, the security question used for recovery, shareable
// custom gestures and user preferences. Everything is persisted through a
// kv.Store.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/kv"
	"gesturelock/internal/lockout"
	"gesturelock/internal/security"
)

// Storage keys.
const (
	KeyPassword       = "gesturelock_gesture_password"
	KeyIsPasswordSet  = "gesturelock_is_password_set"
	KeySecurityInfo   = "gesturelock_security_info"
	KeySettings       = "gesturelock_settings"
	KeyCustomGestures = "gesturelock_custom_gestures"
)

var (
	// ErrNotSet is returned when no pattern has been stored.
	ErrNotSet = errors.New("vault: no pattern set")

	// ErrEmptyPattern is returned when saving an empty sequence.
	ErrEmptyPattern = errors.New("vault: empty pattern")
)

// Record is the stored secret. Times are Unix milliseconds.
type Record struct {
	Password  []int `json:"password"`
	CreatedAt int64 `json:"createdAt"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Vault reads and writes pattern records.
type Vault struct {
	store  kv.Store
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a Vault over store. A nil clock uses the real clock and a nil
// logger uses slog.Default().
func New(store kv.Store, clock clockwork.Clock, logger *slog.Logger) *Vault {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		store:  store,
		clock:  clock,
		logger: logger.With("component", "vault"),
	}
}

// Store returns the underlying store.
func (v *Vault) Store() kv.Store { return v.store }

func (v *Vault) nowMs() int64 { return v.clock.Now().UnixMilli() }

// Save stores seq as the secret and sets the "password is set" flag. The
// creation time of an existing record is kept.
func (v *Vault) Save(seq []int) error {
	if len(seq) == 0 {
		return ErrEmptyPattern
	}

	now := v.nowMs()
	rec := Record{Password: append([]int(nil), seq...), CreatedAt: now, UpdatedAt: now}

	prev, err := v.Get()
	switch {
	case err == nil:
		rec.CreatedAt = prev.CreatedAt
	case !errors.Is(err, ErrNotSet):
		return err
	}

	if err := kv.SetJSON(v.store, KeyPassword, rec); err != nil {
		return fmt.Errorf("vault: save pattern: %w", err)
	}
	if err := kv.SetJSON(v.store, KeyIsPasswordSet, true); err != nil {
		return fmt.Errorf("vault: set flag: %w", err)
	}

	v.logger.Info("pattern saved", "nodes", len(seq))
	return nil
}

// Get returns the stored record, or ErrNotSet.
func (v *Vault) Get() (*Record, error) {
	var rec Record
	err := kv.GetJSON(v.store, KeyPassword, &rec)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotSet
	}
	if err != nil {
		return nil, fmt.Errorf("vault: load pattern: %w", err)
	}
	if len(rec.Password) == 0 {
		return nil, ErrNotSet
	}
	return &rec, nil
}

// IsSet reports the "password is set" flag.
func (v *Vault) IsSet() (bool, error) {
	var set bool
	err := kv.GetJSON(v.store, KeyIsPasswordSet, &set)
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("vault: load flag: %w", err)
	}
	return set, nil
}

// Remove deletes the secret and clears the flag.
func (v *Vault) Remove() error {
	if err := v.store.Remove(KeyPassword); err != nil {
		return fmt.Errorf("vault: remove pattern: %w", err)
	}
	if err := kv.SetJSON(v.store, KeyIsPasswordSet, false); err != nil {
		return fmt.Errorf("vault: clear flag: %w", err)
	}
	v.logger.Info("pattern removed")
	return nil
}

// Verify compares seq with the stored secret in constant time over their
// canonical encodings.
func (v *Vault) Verify(seq []int) (bool, error) {
	rec, err := v.Get()
	if err != nil {
		return false, err
	}

	want, err := json.Marshal(rec.Password)
	if err != nil {
		return false, fmt.Errorf("vault: encode: %w", err)
	}
	got, err := json.Marshal(seq)
	if err != nil {
		return false, fmt.Errorf("vault: encode: %w", err)
	}
	defer security.Wipe(want)
	defer security.Wipe(got)

	return security.SecureCompare(want, got), nil
}

// Reset replaces the secret after the user proved their identity and
// clears any persisted lockout.
func (v *Vault) Reset(seq []int) error {
	if err := v.Save(seq); err != nil {
		return err
	}
	if err := v.store.Remove(lockout.StorageKey); err != nil {
		return fmt.Errorf("vault: clear lock: %w", err)
	}
	v.logger.Info("pattern reset")
	return nil
}
