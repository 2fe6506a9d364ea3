package vault

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"gesturelock/internal/kv"
	"gesturelock/internal/security"
)

// ShareCodeLength is the length of generated share codes.
const ShareCodeLength = 8

// DefaultImportName names imported gestures that carry no name.
const DefaultImportName = "Imported gesture"

var (
	ErrGestureNotFound  = errors.New("vault: gesture not found")
	ErrInvalidGesture   = errors.New("vault: invalid gesture")
	ErrIncompatibleRows = errors.New("vault: gesture row count does not match grid")
)

//go:embed schema/gesture-v1.schema.json
var gestureSchemaJSON []byte

const gestureSchemaURL = "https://gesturelock.local/schema/gesture-v1.schema.json"

var (
	gestureSchemaOnce sync.Once
	gestureSchema     *jsonschema.Schema
	gestureSchemaErr  error
)

func compiledGestureSchema() (*jsonschema.Schema, error) {
	gestureSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(gestureSchemaURL, bytes.NewReader(gestureSchemaJSON)); err != nil {
			gestureSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		gestureSchema, gestureSchemaErr = compiler.Compile(gestureSchemaURL)
	})
	return gestureSchema, gestureSchemaErr
}

// Gesture is a named pattern that can be exported and shared.
type Gesture struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Gesture     []int  `json:"gesture"`
	Rows        int    `json:"rows"`
	ShareCode   string `json:"shareCode"`
	CreatedAt   int64  `json:"createdAt,omitempty"`
	ShareCount  int    `json:"shareCount"`
	UsedCount   int    `json:"usedCount"`
}

// exported is the subset of a Gesture that leaves the device.
type exported struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Gesture     []int  `json:"gesture"`
	Rows        int    `json:"rows"`
	ShareCode   string `json:"shareCode"`
}

// NewShareCode returns a random share code.
func NewShareCode() (string, error) {
	return security.RandomAlphanumeric(ShareCodeLength)
}

// checkSequence verifies that every index lies in 1..rows² without repeats.
func checkSequence(seq []int, rows int) error {
	if len(seq) == 0 {
		return fmt.Errorf("%w: empty sequence", ErrInvalidGesture)
	}
	seen := make(map[int]bool, len(seq))
	for _, idx := range seq {
		if idx < 1 || idx > rows*rows {
			return fmt.Errorf("%w: node %d outside a %dx%d grid", ErrInvalidGesture, idx, rows, rows)
		}
		if seen[idx] {
			return fmt.Errorf("%w: node %d repeated", ErrInvalidGesture, idx)
		}
		seen[idx] = true
	}
	return nil
}

// parseExport validates data against the gesture schema and the grid bounds.
func parseExport(data []byte) (*exported, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGesture, err)
	}

	schema, err := compiledGestureSchema()
	if err != nil {
		return nil, fmt.Errorf("vault: compile gesture schema: %w", err)
	}
	if err := schema.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGesture, err)
	}

	var e exported
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidGesture, err)
	}
	if err := checkSequence(e.Gesture, e.Rows); err != nil {
		return nil, err
	}
	return &e, nil
}

// Gestures returns the saved custom gestures, newest first.
func (v *Vault) Gestures() ([]Gesture, error) {
	var list []Gesture
	err := kv.GetJSON(v.store, KeyCustomGestures, &list)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: load gestures: %w", err)
	}
	return list, nil
}

// SaveGesture updates the gesture with the same ID or prepends a new one.
func (v *Vault) SaveGesture(g Gesture) error {
	list, err := v.Gestures()
	if err != nil {
		return err
	}
	if i := slices.IndexFunc(list, func(x Gesture) bool { return x.ID == g.ID }); i >= 0 {
		list[i] = g
	} else {
		list = append([]Gesture{g}, list...)
	}
	if err := kv.SetJSON(v.store, KeyCustomGestures, list); err != nil {
		return fmt.Errorf("vault: save gestures: %w", err)
	}
	return nil
}

// CreateGesture validates seq and saves it as a new named gesture.
func (v *Vault) CreateGesture(name, description string, seq []int, rows int) (*Gesture, error) {
	if err := checkSequence(seq, rows); err != nil {
		return nil, err
	}
	code, err := NewShareCode()
	if err != nil {
		return nil, err
	}
	g := Gesture{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Gesture:     slices.Clone(seq),
		Rows:        rows,
		ShareCode:   code,
		CreatedAt:   v.nowMs(),
	}
	if err := v.SaveGesture(g); err != nil {
		return nil, err
	}
	return &g, nil
}

// Gesture returns the gesture with id.
func (v *Vault) Gesture(id string) (*Gesture, error) {
	list, err := v.Gestures()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ID == id {
			return &list[i], nil
		}
	}
	return nil, ErrGestureNotFound
}

// GestureByShareCode returns the gesture carrying code.
func (v *Vault) GestureByShareCode(code string) (*Gesture, error) {
	list, err := v.Gestures()
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].ShareCode == code {
			return &list[i], nil
		}
	}
	return nil, ErrGestureNotFound
}

// DeleteGesture removes the gesture with id.
func (v *Vault) DeleteGesture(id string) error {
	list, err := v.Gestures()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(slices.Clone(list), func(g Gesture) bool { return g.ID == id })
	if len(kept) == len(list) {
		return ErrGestureNotFound
	}
	if err := kv.SetJSON(v.store, KeyCustomGestures, kept); err != nil {
		return fmt.Errorf("vault: save gestures: %w", err)
	}
	return nil
}

// Export serialises the shareable fields of a saved gesture.
func (v *Vault) Export(id string) ([]byte, error) {
	g, err := v.Gesture(id)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(exported{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		Gesture:     g.Gesture,
		Rows:        g.Rows,
		ShareCode:   g.ShareCode,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: encode gesture: %w", err)
	}
	return data, nil
}

// Import validates an exported gesture and saves it. Missing ID, name and
// share code are filled in.
func (v *Vault) Import(data []byte) (*Gesture, error) {
	e, err := parseExport(data)
	if err != nil {
		return nil, err
	}

	g := Gesture{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Gesture:     e.Gesture,
		Rows:        e.Rows,
		ShareCode:   e.ShareCode,
		CreatedAt:   v.nowMs(),
	}
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	if g.Name == "" {
		g.Name = DefaultImportName
	}
	if g.ShareCode == "" {
		if g.ShareCode, err = NewShareCode(); err != nil {
			return nil, err
		}
	}

	if err := v.SaveGesture(g); err != nil {
		return nil, err
	}
	v.logger.Info("gesture imported", "id", g.ID, "rows", g.Rows)
	return &g, nil
}

// ExportSecret serialises the stored secret as a shareable gesture record
// for a grid of rows.
func (v *Vault) ExportSecret(rows int) ([]byte, error) {
	rec, err := v.Get()
	if err != nil {
		return nil, err
	}
	if err := checkSequence(rec.Password, rows); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIncompatibleRows, err)
	}
	code, err := NewShareCode()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(exported{
		ID:        uuid.NewString(),
		Name:      "Stored pattern",
		Gesture:   rec.Password,
		Rows:      rows,
		ShareCode: code,
	})
	if err != nil {
		return nil, fmt.Errorf("vault: encode secret: %w", err)
	}
	return data, nil
}

// ImportSecret validates an exported record and stores its sequence as the
// secret. The record must have been exported for a grid of rows.
func (v *Vault) ImportSecret(data []byte, rows int) ([]int, error) {
	e, err := parseExport(data)
	if err != nil {
		return nil, err
	}
	if e.Rows != rows {
		return nil, fmt.Errorf("%w: record has %d rows, grid has %d", ErrIncompatibleRows, e.Rows, rows)
	}
	if err := v.Save(e.Gesture); err != nil {
		return nil, err
	}
	return slices.Clone(e.Gesture), nil
}
