package vault

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/argon2"

	"gesturelock/internal/kv"
	"gesturelock/internal/security"
)

// MinAnswerLength is the shortest accepted security answer, in characters.
const MinAnswerLength = 2

// argon2id parameters for answer hashes.
const (
	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 1
	argonKeyLen  = 32
	saltLen      = 16
)

var (
	ErrQuestionRequired = errors.New("vault: security question required")
	ErrAnswerTooShort   = errors.New("vault: security answer too short")
	ErrNoSecurityInfo   = errors.New("vault: no security info")
)

// SecurityInfo is what the user supplies for recovery.
type SecurityInfo struct {
	Question string
	Answer   string
	Phone    string
	Email    string
}

// securityRecord is the stored form. The answer is only kept as a hash.
type securityRecord struct {
	Question   string `json:"question"`
	AnswerHash string `json:"answerHash"`
	Salt       string `json:"salt"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// SecurityProfile is the readable part of the stored security info.
type SecurityProfile struct {
	Question  string
	Phone     string
	Email     string
	CreatedAt int64
	UpdatedAt int64
}

func normalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func hashAnswer(answer string, salt []byte) []byte {
	return argon2.IDKey([]byte(normalizeAnswer(answer)), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func validateAnswer(answer string) error {
	if utf8.RuneCountInString(strings.TrimSpace(answer)) < MinAnswerLength {
		return ErrAnswerTooShort
	}
	return nil
}

func (r *securityRecord) setAnswer(answer string) error {
	salt, err := security.RandomBytes(saltLen)
	if err != nil {
		return err
	}
	r.Salt = base64.StdEncoding.EncodeToString(salt)
	r.AnswerHash = base64.StdEncoding.EncodeToString(hashAnswer(answer, salt))
	return nil
}

// SaveSecurityInfo stores a security question and a hash of its answer.
func (v *Vault) SaveSecurityInfo(info SecurityInfo) error {
	if strings.TrimSpace(info.Question) == "" {
		return ErrQuestionRequired
	}
	if err := validateAnswer(info.Answer); err != nil {
		return err
	}

	now := v.nowMs()
	rec := securityRecord{
		Question:  strings.TrimSpace(info.Question),
		Phone:     info.Phone,
		Email:     info.Email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := rec.setAnswer(info.Answer); err != nil {
		return fmt.Errorf("vault: hash answer: %w", err)
	}

	if err := kv.SetJSON(v.store, KeySecurityInfo, rec); err != nil {
		return fmt.Errorf("vault: save security info: %w", err)
	}
	v.logger.Info("security info saved")
	return nil
}

func (v *Vault) loadSecurity() (*securityRecord, error) {
	var rec securityRecord
	err := kv.GetJSON(v.store, KeySecurityInfo, &rec)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNoSecurityInfo
	}
	if err != nil {
		return nil, fmt.Errorf("vault: load security info: %w", err)
	}
	if rec.AnswerHash == "" {
		return nil, ErrNoSecurityInfo
	}
	return &rec, nil
}

// SecurityProfile returns the stored question and contact details.
func (v *Vault) SecurityProfile() (*SecurityProfile, error) {
	rec, err := v.loadSecurity()
	if err != nil {
		return nil, err
	}
	return &SecurityProfile{
		Question:  rec.Question,
		Phone:     rec.Phone,
		Email:     rec.Email,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

// VerifyAnswer checks answer against the stored hash, ignoring case and
// surrounding whitespace.
func (v *Vault) VerifyAnswer(answer string) (bool, error) {
	rec, err := v.loadSecurity()
	if err != nil {
		return false, err
	}
	salt, err := base64.StdEncoding.DecodeString(rec.Salt)
	if err != nil {
		return false, fmt.Errorf("vault: decode salt: %w", err)
	}
	want, err := base64.StdEncoding.DecodeString(rec.AnswerHash)
	if err != nil {
		return false, fmt.Errorf("vault: decode answer hash: %w", err)
	}
	got := hashAnswer(answer, salt)
	defer security.Wipe(got)
	return security.SecureCompare(want, got), nil
}

// UpdateSecurityInfo merges the non-empty fields of info into the stored
// record. A new answer is rehashed with a fresh salt.
func (v *Vault) UpdateSecurityInfo(info SecurityInfo) error {
	rec, err := v.loadSecurity()
	if err != nil {
		return err
	}

	if q := strings.TrimSpace(info.Question); q != "" {
		rec.Question = q
	}
	if info.Answer != "" {
		if err := validateAnswer(info.Answer); err != nil {
			return err
		}
		if err := rec.setAnswer(info.Answer); err != nil {
			return fmt.Errorf("vault: hash answer: %w", err)
		}
	}
	if info.Phone != "" {
		rec.Phone = info.Phone
	}
	if info.Email != "" {
		rec.Email = info.Email
	}
	rec.UpdatedAt = v.nowMs()

	if err := kv.SetJSON(v.store, KeySecurityInfo, rec); err != nil {
		return fmt.Errorf("vault: save security info: %w", err)
	}
	return nil
}
