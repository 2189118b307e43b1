package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/adeelraza/floodcoord/internal/cache"
	"github.com/adeelraza/floodcoord/pkg/crypto"
)

// Challenge lifecycle errors.
var (
	ErrChallengeNotFound = errors.New("challenge: not found")
	ErrChallengeExpired  = errors.New("challenge: expired")
	ErrInvalidCode       = errors.New("challenge: invalid code")
)

const (
	defaultChallengeTTL = 5 * time.Minute
	defaultCodeDigits   = 6
	challengeKeyPrefix  = "login-challenge:"
)

// ChallengeConfig tunes the one-time-code login step.
type ChallengeConfig struct {
	TTL    time.Duration
	Digits int
	// MasterCode is an operational override accepted in place of the issued
	// code. It must be injected per environment and every use is logged by the
	// caller; an empty value disables the override.
	MasterCode string
	Clock      func() time.Time
}

// ChallengeService issues and verifies short-lived one-time login codes. The
// backing store decides durability: process memory for a single instance, the
// database or Redis for multi-instance deployments.
type ChallengeService struct {
	store      cache.Store
	ttl        time.Duration
	digits     int
	masterCode string
	now        func() time.Time
}

type challengeRecord struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewChallengeService constructs a ChallengeService backed by the given store.
func NewChallengeService(store cache.Store, cfg ChallengeConfig) (*ChallengeService, error) {
	if store == nil {
		return nil, errors.New("challenge service: store is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultChallengeTTL
	}
	digits := cfg.Digits
	if digits <= 0 {
		digits = defaultCodeDigits
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &ChallengeService{
		store:      store,
		ttl:        ttl,
		digits:     digits,
		masterCode: strings.TrimSpace(cfg.MasterCode),
		now:        now,
	}, nil
}

// Issue creates a new one-time code for the identifier, replacing any prior
// live challenge. It returns the code for out-of-band delivery.
func (s *ChallengeService) Issue(ctx context.Context, identifier string) (string, error) {
	identifier = normaliseIdentifier(identifier)
	if identifier == "" {
		return "", errors.New("challenge service: identifier is required")
	}

	code, err := crypto.GenerateNumericCode(s.digits)
	if err != nil {
		return "", fmt.Errorf("challenge service: generate code: %w", err)
	}

	record := challengeRecord{
		Code:      code,
		ExpiresAt: s.now().Add(s.ttl),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("challenge service: marshal record: %w", err)
	}

	if err := s.store.Set(ctx, challengeKey(identifier), payload, s.ttl); err != nil {
		return "", fmt.Errorf("challenge service: store challenge: %w", err)
	}

	return code, nil
}

// Verify consumes the challenge for the identifier. A successful verification
// deletes the entry so codes are single-use; an expired entry is evicted. The
// configured master code, when set, is accepted in place of the issued code.
func (s *ChallengeService) Verify(ctx context.Context, identifier, submitted string) error {
	identifier = normaliseIdentifier(identifier)
	submitted = strings.TrimSpace(submitted)
	key := challengeKey(identifier)

	payload, found, err := s.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("challenge service: load challenge: %w", err)
	}
	if !found {
		return ErrChallengeNotFound
	}

	var record challengeRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		_ = s.store.Delete(ctx, key)
		return fmt.Errorf("challenge service: decode record: %w", err)
	}

	if s.now().After(record.ExpiresAt) {
		_ = s.store.Delete(ctx, key)
		return ErrChallengeExpired
	}

	if !codesMatch(submitted, record.Code) && !s.isMasterCode(submitted) {
		return ErrInvalidCode
	}

	if err := s.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("challenge service: consume challenge: %w", err)
	}
	return nil
}

// IsMasterCode reports whether the submitted code matched the configured
// override rather than an issued challenge; callers use it for audit logging.
func (s *ChallengeService) IsMasterCode(submitted string) bool {
	return s.isMasterCode(strings.TrimSpace(submitted))
}

func (s *ChallengeService) isMasterCode(submitted string) bool {
	return s.masterCode != "" && codesMatch(submitted, s.masterCode)
}

func codesMatch(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func challengeKey(identifier string) string {
	return challengeKeyPrefix + identifier
}

func normaliseIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
