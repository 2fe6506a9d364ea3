package vault

import (
	"errors"
	"fmt"
	"slices"

	"gesturelock/internal/kv"
)

// Themes a renderer may offer.
var Themes = []string{"tech", "simple", "cartoon"}

// ErrInvalidPreferences is returned for an unknown theme or grid size.
var ErrInvalidPreferences = errors.New("vault: invalid preferences")

// Preferences are the user's display and feedback settings.
type Preferences struct {
	Theme    string `json:"theme"`
	GridSize int    `json:"gridSize"`
	Sound    bool   `json:"sound"`
	Vibrate  bool   `json:"vibrate"`
}

// DefaultPreferences returns the tech theme on a 3x3 grid with sound and
// vibration on.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "tech", GridSize: 3, Sound: true, Vibrate: true}
}

// Validate checks the theme and grid size.
func (p Preferences) Validate() error {
	if !slices.Contains(Themes, p.Theme) {
		return fmt.Errorf("%w: theme %q", ErrInvalidPreferences, p.Theme)
	}
	if p.GridSize < 3 || p.GridSize > 6 {
		return fmt.Errorf("%w: grid size %d not in 3..6", ErrInvalidPreferences, p.GridSize)
	}
	return nil
}

// storedPreferences tolerates partial records: absent feedback flags
// default to on.
type storedPreferences struct {
	Theme    string `json:"theme"`
	GridSize int    `json:"gridSize"`
	Sound    *bool  `json:"sound"`
	Vibrate  *bool  `json:"vibrate"`
}

// Preferences loads the stored preferences, filling gaps with defaults.
func (v *Vault) Preferences() (Preferences, error) {
	p := DefaultPreferences()

	var s storedPreferences
	err := kv.GetJSON(v.store, KeySettings, &s)
	if errors.Is(err, kv.ErrNotFound) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("vault: load preferences: %w", err)
	}

	if s.Theme != "" {
		p.Theme = s.Theme
	}
	if s.GridSize != 0 {
		p.GridSize = s.GridSize
	}
	if s.Sound != nil {
		p.Sound = *s.Sound
	}
	if s.Vibrate != nil {
		p.Vibrate = *s.Vibrate
	}
	return p, nil
}

// SavePreferences validates and stores p.
func (v *Vault) SavePreferences(p Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := kv.SetJSON(v.store, KeySettings, p); err != nil {
		return fmt.Errorf("vault: save preferences: %w", err)
	}
	return nil
}

// ResetPreferences drops the stored preferences.
func (v *Vault) ResetPreferences() error {
	if err := v.store.Remove(KeySettings); err != nil {
		return fmt.Errorf("vault: reset preferences: %w", err)
	}
	return nil
}
