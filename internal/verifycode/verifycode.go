// Package verifycode issues short numeric codes that prove control of a
// phone number or mailbox before the secret pattern is reset.
package verifycode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"gesturelock/internal/config"
	"gesturelock/internal/kv"
	"gesturelock/internal/security"
)

// Storage keys.
const (
	KeyCode       = "gesturelock_verification_code"
	KeyExpireTime = "gesturelock_code_expire_time"
)

// Delivery channels.
const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
)

var (
	ErrNoTarget       = errors.New("verifycode: no delivery target")
	ErrUnknownChannel = errors.New("verifycode: unknown channel")
	ErrCooldown       = errors.New("verifycode: resend cooldown active")
)

// Status is the result of checking a code.
type Status int

const (
	StatusMissing Status = iota
	StatusValid
	StatusExpired
	StatusMismatch
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusExpired:
		return "expired"
	case StatusMismatch:
		return "mismatch"
	default:
		return "missing"
	}
}

// Result describes a Verify call.
type Result struct {
	Status Status
}

// Valid reports whether the code matched.
func (r Result) Valid() bool { return r.Status == StatusValid }

// Sender delivers a code to a target.
type Sender interface {
	Send(ctx context.Context, channel, target, code string) error
}

// LogSender is a development Sender. It logs each delivery and, when Out is
// set, prints the code there.
type LogSender struct {
	Logger *slog.Logger
	Out    io.Writer
}

func (s LogSender) Send(ctx context.Context, channel, target, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "verification code delivered", "channel", channel, "target", mask(target))
	if s.Out != nil {
		if _, err := fmt.Fprintf(s.Out, "verification code for %s: %s\n", target, code); err != nil {
			return err
		}
	}
	return nil
}

// mask keeps the last four characters of a target.
func mask(target string) string {
	r := []rune(target)
	if len(r) <= 4 {
		return "****"
	}
	return "****" + string(r[len(r)-4:])
}

// NoCooldown disables the resend cooldown. A zero ResendCooldown means the
// default.
const NoCooldown time.Duration = -1

// Config controls code generation.
type Config struct {
	Length         int
	TTL            time.Duration
	ResendCooldown time.Duration
	Channel        string
}

// DefaultConfig returns six digits valid for five minutes with a one minute
// resend cooldown over SMS.
func DefaultConfig() Config {
	return Config{Length: 6, TTL: 5 * time.Minute, ResendCooldown: time.Minute, Channel: ChannelSMS}
}

// ConfigFrom converts the file configuration, where resend_cooldown_sec = 0
// turns the cooldown off.
func ConfigFrom(c config.VerificationCodeConfig) Config {
	cooldown := c.ResendCooldown()
	if cooldown == 0 {
		cooldown = NoCooldown
	}
	return Config{
		Length:         c.Length,
		TTL:            c.TTL(),
		ResendCooldown: cooldown,
		Channel:        c.Channel,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Length <= 0 {
		c.Length = d.Length
	}
	if c.TTL <= 0 {
		c.TTL = d.TTL
	}
	switch {
	case c.ResendCooldown == 0:
		c.ResendCooldown = d.ResendCooldown
	case c.ResendCooldown < 0:
		c.ResendCooldown = NoCooldown
	}
	if c.Channel == "" {
		c.Channel = d.Channel
	}
	return c
}

// Service issues and checks codes. Codes live in the store so a separate
// process can check them; the resend cooldown is per Service.
type Service struct {
	cfg    Config
	store  kv.Store
	sender Sender
	clock  clockwork.Clock
	logger *slog.Logger

	mu       sync.Mutex
	lastSent time.Time
}

// New creates a Service. A nil sender uses LogSender and a nil clock the
// real clock.
func New(cfg Config, store kv.Store, sender Sender, clock clockwork.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "verifycode")
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		cfg:    cfg.withDefaults(),
		store:  store,
		sender: sender,
		clock:  clock,
		logger: logger,
	}
}

// Send generates a code, stores it with its expiry and hands it to the
// sender. An empty channel uses the configured default.
func (s *Service) Send(ctx context.Context, target, channel string) error {
	if target == "" {
		return ErrNoTarget
	}
	if channel == "" {
		channel = s.cfg.Channel
	}
	if channel != ChannelSMS && channel != ChannelEmail {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !s.lastSent.IsZero() {
		if wait := s.lastSent.Add(s.cfg.ResendCooldown).Sub(now); wait > 0 {
			return fmt.Errorf("%w: retry in %s", ErrCooldown, wait.Round(time.Second))
		}
	}

	code, err := security.RandomDigits(s.cfg.Length)
	if err != nil {
		return fmt.Errorf("verifycode: generate: %w", err)
	}
	if err := kv.SetJSON(s.store, KeyCode, code); err != nil {
		return fmt.Errorf("verifycode: store code: %w", err)
	}
	if err := kv.SetJSON(s.store, KeyExpireTime, now.Add(s.cfg.TTL).UnixMilli()); err != nil {
		return fmt.Errorf("verifycode: store expiry: %w", err)
	}

	if err := s.sender.Send(ctx, channel, target, code); err != nil {
		_ = s.clear()
		return fmt.Errorf("verifycode: deliver: %w", err)
	}

	s.lastSent = now
	s.logger.Info("verification code sent", "channel", channel, "ttl", s.cfg.TTL)
	return nil
}

// Verify checks input against the stored code. Valid and expired codes are
// cleared; a mismatch leaves the code in place for another try.
func (s *Service) Verify(input string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var code string
	err := kv.GetJSON(s.store, KeyCode, &code)
	if errors.Is(err, kv.ErrNotFound) || (err == nil && code == "") {
		return Result{Status: StatusMissing}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("verifycode: load code: %w", err)
	}

	var expireMs int64
	if err := kv.GetJSON(s.store, KeyExpireTime, &expireMs); err != nil && !errors.Is(err, kv.ErrNotFound) {
		return Result{}, fmt.Errorf("verifycode: load expiry: %w", err)
	}
	if s.clock.Now().UnixMilli() > expireMs {
		if err := s.clear(); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusExpired}, nil
	}

	if !security.SecureCompare([]byte(code), []byte(input)) {
		return Result{Status: StatusMismatch}, nil
	}
	if err := s.clear(); err != nil {
		return Result{}, err
	}
	return Result{Status: StatusValid}, nil
}

// Remaining returns how long the stored code stays valid, or zero.
func (s *Service) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expireMs int64
	if err := kv.GetJSON(s.store, KeyExpireTime, &expireMs); err != nil {
		return 0
	}
	left := time.UnixMilli(expireMs).Sub(s.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

// CooldownRemaining returns how long until Send may be called again.
func (s *Service) CooldownRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSent.IsZero() {
		return 0
	}
	left := s.lastSent.Add(s.cfg.ResendCooldown).Sub(s.clock.Now())
	if left < 0 {
		return 0
	}
	return left
}

func (s *Service) clear() error {
	if err := s.store.Remove(KeyCode); err != nil {
		return fmt.Errorf("verifycode: clear code: %w", err)
	}
	if err := s.store.Remove(KeyExpireTime); err != nil {
		return fmt.Errorf("verifycode: clear expiry: %w", err)
	}
	return nil
}
