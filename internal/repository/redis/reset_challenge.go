package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/arklim/moodwell/internal/core/domain"
	"github.com/arklim/moodwell/internal/core/port"
	"github.com/arklim/moodwell/internal/repository"
)

const (
	defaultResetPrefix = "reset"

	fieldCode      = "code"
	fieldCreatedAt = "created_at"
	fieldExpiresAt = "expires_at"
	fieldVerified  = "verified"
)

// ResetChallengeRepository keeps one hash per email. Keys only carry a TTL when the
// challenge has a deadline.
type ResetChallengeRepository struct {
	client *red.Client
	prefix string
	now    func() time.Time
}

// NewResetChallengeRepository constructs the repository with the provided client and key prefix.
func NewResetChallengeRepository(client *red.Client, keyPrefix string) *ResetChallengeRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultResetPrefix
	}

	return &ResetChallengeRepository{
		client: client,
		prefix: prefix,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (r *ResetChallengeRepository) WithClock(clock func() time.Time) *ResetChallengeRepository {
	if clock != nil {
		r.now = clock
	}
	return r
}

// Put replaces any pending challenge for the email.
func (r *ResetChallengeRepository) Put(ctx context.Context, challenge domain.ResetChallenge) error {
	key := r.key(challenge.Email)
	switch {
	case key == "":
		return errors.New("email is required")
	case strings.TrimSpace(challenge.Code) == "":
		return errors.New("code is required")
	}

	expiresAt := "0"
	if !challenge.ExpiresAt.IsZero() {
		expiresAt = strconv.FormatInt(challenge.ExpiresAt.Unix(), 10)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:      challenge.Code,
		fieldCreatedAt: strconv.FormatInt(challenge.CreatedAt.Unix(), 10),
		fieldExpiresAt: expiresAt,
		fieldVerified:  boolFlag(challenge.Verified),
	})
	if !challenge.ExpiresAt.IsZero() {
		pipe.ExpireAt(ctx, key, challenge.ExpiresAt)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store reset challenge: %w", err)
	}
	return nil
}

// Get returns the pending challenge or repository.ErrNotFound.
func (r *ResetChallengeRepository) Get(ctx context.Context, email string) (*domain.ResetChallenge, error) {
	key := r.key(email)
	if key == "" {
		return nil, repository.ErrNotFound
	}

	values, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall reset challenge: %w", err)
	}

	code := values[fieldCode]
	if len(values) == 0 || code == "" {
		return nil, repository.ErrNotFound
	}

	createdAt, err := parseUnix(values[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	var expiresAt time.Time
	if raw := values[fieldExpiresAt]; raw != "" && raw != "0" {
		if expiresAt, err = parseUnix(raw); err != nil {
			return nil, fmt.Errorf("parse expires_at: %w", err)
		}
	}

	challenge := &domain.ResetChallenge{
		Email:     email,
		Code:      code,
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
		Verified:  values[fieldVerified] == "1",
	}
	if challenge.Expired(r.now()) {
		return nil, repository.ErrNotFound
	}
	return challenge, nil
}

// markVerifiedScript sets the flag only on an existing, unexpired hash whose
// code equals ARGV[1]. It never creates the key, so a lapsed TTL stays lapsed.
var markVerifiedScript = red.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code or code ~= ARGV[1] then
  return 0
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at') or '0') or 0
if expires > 0 and tonumber(ARGV[2]) >= expires then
  return 0
end
redis.call('HSET', KEYS[1], 'verified', '1')
return 1
`)

// MarkVerified flags the pending challenge as verified without extending its lifetime.
func (r *ResetChallengeRepository) MarkVerified(ctx context.Context, email, code string) error {
	key := r.key(email)
	if key == "" || code == "" {
		return repository.ErrNotFound
	}

	marked, err := markVerifiedScript.Run(ctx, r.client, []string{key}, code, r.now().Unix()).Int()
	if err != nil {
		return fmt.Errorf("redis mark reset challenge verified: %w", err)
	}
	if marked == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes the challenge. Deleting a missing challenge is not an error.
func (r *ResetChallengeRepository) Delete(ctx context.Context, email string) error {
	key := r.key(email)
	if key == "" {
		return nil
	}

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete reset challenge: %w", err)
	}
	return nil
}

func (r *ResetChallengeRepository) key(email string) string {
	if email == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s", r.prefix, email)
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func parseUnix(raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, errors.New("timestamp is empty")
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(v, 0).UTC(), nil
}

var _ port.ResetChallengeStore = (*ResetChallengeRepository)(nil)
