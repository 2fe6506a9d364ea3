package vault

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gesturelock/internal/kv"
	"gesturelock/internal/lockout"
	"gesturelock/internal/logging"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newVault(t *testing.T) (*Vault, *kv.Memory, *clockwork.FakeClock) {
	t.Helper()
	store := kv.NewMemory()
	clock := clockwork.NewFakeClockAt(epoch)
	return New(store, clock, logging.Discard()), store, clock
}

func TestSaveGetVerify(t *testing.T) {
	v, _, clock := newVault(t)

	set, err := v.IsSet()
	require.NoError(t, err)
	assert.False(t, set)

	_, err = v.Get()
	assert.ErrorIs(t, err, ErrNotSet)

	require.NoError(t, v.Save([]int{1, 2, 3, 6, 9}))

	set, err = v.IsSet()
	require.NoError(t, err)
	assert.True(t, set)

	rec, err := v.Get()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 6, 9}, rec.Password)
	assert.Equal(t, epoch.UnixMilli(), rec.CreatedAt)

	ok, err := v.Verify([]int{1, 2, 3, 6, 9})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify([]int{1, 2, 3, 6, 8})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = v.Verify([]int{1, 2, 3, 6})
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(time.Hour)
	require.NoError(t, v.Save([]int{7, 5, 3}))
	rec, err = v.Get()
	require.NoError(t, err)
	assert.Equal(t, epoch.UnixMilli(), rec.CreatedAt, "creation time kept")
	assert.Equal(t, epoch.Add(time.Hour).UnixMilli(), rec.UpdatedAt)
}

func TestSaveEmpty(t *testing.T) {
	v, _, _ := newVault(t)
	assert.ErrorIs(t, v.Save(nil), ErrEmptyPattern)
}

func TestStoredRecordFormat(t *testing.T) {
	v, store, _ := newVault(t)
	require.NoError(t, v.Save([]int{4, 5, 6}))

	raw, err := store.Get(KeyPassword)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "password")
	assert.Contains(t, m, "createdAt")
	assert.Contains(t, m, "updatedAt")

	flag, err := store.Get(KeyIsPasswordSet)
	require.NoError(t, err)
	assert.Equal(t, "true", string(flag))
}

func TestRemove(t *testing.T) {
	v, _, _ := newVault(t)
	require.NoError(t, v.Save([]int{1, 5, 9}))
	require.NoError(t, v.Remove())

	set, err := v.IsSet()
	require.NoError(t, err)
	assert.False(t, set)

	_, err = v.Verify([]int{1, 5, 9})
	assert.ErrorIs(t, err, ErrNotSet)
}

func TestStorageFailure(t *testing.T) {
	v, store, _ := newVault(t)
	require.NoError(t, v.Save([]int{1, 2, 3}))

	store.Fail(true)
	_, err := v.Verify([]int{1, 2, 3})
	assert.ErrorIs(t, err, kv.ErrStorageFailure)
	assert.False(t, errors.Is(err, ErrNotSet))

	assert.ErrorIs(t, v.Save([]int{3, 2, 1}), kv.ErrStorageFailure)
}

func TestResetClearsLockout(t *testing.T) {
	v, store, _ := newVault(t)
	require.NoError(t, store.Set(lockout.StorageKey, []byte(`{"failureCount":5}`)))

	require.NoError(t, v.Reset([]int{2, 5, 8}))

	_, err := store.Get(lockout.StorageKey)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	ok, err := v.Verify([]int{2, 5, 8})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEnrollment(t *testing.T) {
	v, _, _ := newVault(t)
	e := NewEnrollment(v, 0)
	assert.Equal(t, DefaultMinNodes, e.MinNodes())
	assert.Equal(t, StepDraw, e.Step())

	step, err := e.Submit([]int{1, 2, 3})
	assert.ErrorIs(t, err, ErrTooShort)
	assert.Equal(t, StepDraw, step)

	step, err = e.Submit([]int{1, 2, 3, 6})
	require.NoError(t, err)
	assert.Equal(t, StepConfirm, step)

	step, err = e.Submit([]int{1, 2, 3, 5})
	assert.ErrorIs(t, err, ErrMismatch)
	assert.Equal(t, StepDraw, step)

	_, err = e.Submit([]int{1, 2, 3, 6})
	require.NoError(t, err)
	step, err = e.Submit([]int{1, 2, 3, 6})
	require.NoError(t, err)
	assert.Equal(t, StepDone, step)
	assert.Equal(t, "done", step.String())

	ok, err := v.Verify([]int{1, 2, 3, 6})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.Submit([]int{1, 2, 3, 6})
	assert.ErrorIs(t, err, ErrEnrollmentDone)
}

func TestEnrollmentSaveFailureStaysAtConfirm(t *testing.T) {
	v, store, _ := newVault(t)
	e := NewEnrollment(v, 4)

	_, err := e.Submit([]int{1, 4, 7, 8})
	require.NoError(t, err)

	store.Fail(true)
	step, err := e.Submit([]int{1, 4, 7, 8})
	assert.ErrorIs(t, err, kv.ErrStorageFailure)
	assert.Equal(t, StepConfirm, step)

	store.Fail(false)
	step, err = e.Submit([]int{1, 4, 7, 8})
	require.NoError(t, err)
	assert.Equal(t, StepDone, step)
}

func TestSecurityInfo(t *testing.T) {
	v, store, _ := newVault(t)

	_, err := v.SecurityProfile()
	assert.ErrorIs(t, err, ErrNoSecurityInfo)

	assert.ErrorIs(t, v.SaveSecurityInfo(SecurityInfo{Answer: "blue"}), ErrQuestionRequired)
	assert.ErrorIs(t, v.SaveSecurityInfo(SecurityInfo{Question: "Colour?", Answer: " b "}), ErrAnswerTooShort)

	require.NoError(t, v.SaveSecurityInfo(SecurityInfo{
		Question: "Favourite colour?",
		Answer:   "Cerulean Blue",
		Email:    "user@example.com",
	}))

	raw, err := store.Get(KeySecurityInfo)
	require.NoError(t, err)
	assert.False(t, strings.Contains(strings.ToLower(string(raw)), "cerulean"), "answer stored in plaintext")

	ok, err := v.VerifyAnswer("  cerulean blue ")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.VerifyAnswer("navy")
	require.NoError(t, err)
	assert.False(t, ok)

	p, err := v.SecurityProfile()
	require.NoError(t, err)
	assert.Equal(t, "Favourite colour?", p.Question)
	assert.Equal(t, "user@example.com", p.Email)
}

func TestUpdateSecurityInfo(t *testing.T) {
	v, _, clock := newVault(t)
	assert.ErrorIs(t, v.UpdateSecurityInfo(SecurityInfo{Phone: "555"}), ErrNoSecurityInfo)

	require.NoError(t, v.SaveSecurityInfo(SecurityInfo{Question: "Pet?", Answer: "Rex"}))
	clock.Advance(time.Minute)
	require.NoError(t, v.UpdateSecurityInfo(SecurityInfo{Phone: "555-0100", Answer: "Fido"}))

	p, err := v.SecurityProfile()
	require.NoError(t, err)
	assert.Equal(t, "Pet?", p.Question)
	assert.Equal(t, "555-0100", p.Phone)
	assert.Equal(t, epoch.UnixMilli(), p.CreatedAt)
	assert.Equal(t, epoch.Add(time.Minute).UnixMilli(), p.UpdatedAt)

	ok, err := v.VerifyAnswer("rex")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = v.VerifyAnswer("fido")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestGestureCRUD(t *testing.T) {
	v, _, _ := newVault(t)

	list, err := v.Gestures()
	require.NoError(t, err)
	assert.Empty(t, list)

	a, err := v.CreateGesture("Zig", "", []int{1, 5, 9}, 3)
	require.NoError(t, err)
	assert.Len(t, a.ShareCode, ShareCodeLength)
	b, err := v.CreateGesture("Zag", "", []int{3, 5, 7}, 3)
	require.NoError(t, err)

	list, err = v.Gestures()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID, "newest first")

	got, err := v.GestureByShareCode(a.ShareCode)
	require.NoError(t, err)
	assert.Equal(t, "Zig", got.Name)

	a.UsedCount = 3
	require.NoError(t, v.SaveGesture(*a))
	got, err = v.Gesture(a.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.UsedCount)

	require.NoError(t, v.DeleteGesture(a.ID))
	assert.ErrorIs(t, v.DeleteGesture(a.ID), ErrGestureNotFound)
	_, err = v.Gesture(a.ID)
	assert.ErrorIs(t, err, ErrGestureNotFound)

	_, err = v.CreateGesture("Bad", "", []int{1, 10}, 3)
	assert.ErrorIs(t, err, ErrInvalidGesture)
}

func TestExportImport(t *testing.T) {
	src, _, _ := newVault(t)
	g, err := src.CreateGesture("Corner", "four corners", []int{1, 3, 9, 7}, 3)
	require.NoError(t, err)

	data, err := src.Export(g.ID)
	require.NoError(t, err)

	dst, _, _ := newVault(t)
	imported, err := dst.Import(data)
	require.NoError(t, err)
	assert.Equal(t, g.ID, imported.ID)
	assert.Equal(t, g.ShareCode, imported.ShareCode)
	assert.Equal(t, []int{1, 3, 9, 7}, imported.Gesture)
	assert.Equal(t, "four corners", imported.Description)
}

func TestImportDefaults(t *testing.T) {
	v, _, _ := newVault(t)
	g, err := v.Import([]byte(`{"gesture":[1,2,3],"rows":3}`))
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, DefaultImportName, g.Name)
	assert.Len(t, g.ShareCode, ShareCodeLength)
	assert.Equal(t, epoch.UnixMilli(), g.CreatedAt)
}

func TestImportRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{`},
		{"missing gesture", `{"rows":3}`},
		{"missing rows", `{"gesture":[1,2]}`},
		{"rows too large", `{"gesture":[1,2],"rows":7}`},
		{"index zero", `{"gesture":[0,1],"rows":3}`},
		{"index outside grid", `{"gesture":[1,10],"rows":3}`},
		{"duplicate node", `{"gesture":[1,2,1],"rows":3}`},
		{"bad share code", `{"gesture":[1,2],"rows":3,"shareCode":"abc"}`},
		{"string index", `{"gesture":["1"],"rows":3}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, store, _ := newVault(t)
			_, err := v.Import([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidGesture)
			assert.Zero(t, store.Keys())
		})
	}
}

func TestSecretExportImport(t *testing.T) {
	v, _, _ := newVault(t)
	require.NoError(t, v.Save([]int{1, 2, 3, 6, 9}))

	data, err := v.ExportSecret(3)
	require.NoError(t, err)

	other, _, _ := newVault(t)
	seq, err := other.ImportSecret(data, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 6, 9}, seq)

	ok, err := other.Verify([]int{1, 2, 3, 6, 9})
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = other.ImportSecret(data, 4)
	assert.ErrorIs(t, err, ErrIncompatibleRows)
}

func TestExportSecretIncompatibleGrid(t *testing.T) {
	v, _, _ := newVault(t)
	require.NoError(t, v.Save([]int{1, 5, 10, 16}))

	_, err := v.ExportSecret(3)
	assert.ErrorIs(t, err, ErrIncompatibleRows)

	_, err = v.ExportSecret(4)
	assert.NoError(t, err)
}

func TestPreferences(t *testing.T) {
	v, store, _ := newVault(t)

	p, err := v.Preferences()
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), p)

	require.NoError(t, store.Set(KeySettings, []byte(`{"theme":"simple","sound":false}`)))
	p, err = v.Preferences()
	require.NoError(t, err)
	assert.Equal(t, "simple", p.Theme)
	assert.Equal(t, 3, p.GridSize)
	assert.False(t, p.Sound)
	assert.True(t, p.Vibrate, "absent flag defaults on")

	assert.ErrorIs(t, v.SavePreferences(Preferences{Theme: "neon", GridSize: 3}), ErrInvalidPreferences)
	assert.ErrorIs(t, v.SavePreferences(Preferences{Theme: "tech", GridSize: 8}), ErrInvalidPreferences)

	want := Preferences{Theme: "cartoon", GridSize: 5, Sound: true}
	require.NoError(t, v.SavePreferences(want))
	p, err = v.Preferences()
	require.NoError(t, err)
	assert.Equal(t, want, p)

	require.NoError(t, v.ResetPreferences())
	p, err = v.Preferences()
	require.NoError(t, err)
	assert.Equal(t, DefaultPreferences(), p)
}
