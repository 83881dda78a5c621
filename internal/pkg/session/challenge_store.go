package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrChallengeNotFound means the challenge was never issued, already consumed or expired.
var ErrChallengeNotFound = errors.New("challenge not found or already used")

// ChallengeTTL matches the lifetime of a Cognito auth challenge session.
const ChallengeTTL = 3 * time.Minute

// ChallengeStore records pending sign-in challenges so each one is answered at most once.
// Keys are hashes of the provider's session token; the token itself is never stored.
type ChallengeStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewChallengeStore(client redis.UniversalClient, ttl time.Duration) *ChallengeStore {
	if ttl <= 0 {
		ttl = ChallengeTTL
	}
	return &ChallengeStore{client: client, ttl: ttl}
}

// Put records a pending challenge for username
func (s *ChallengeStore) Put(ctx context.Context, challengeSession, username string) error {
	if err := s.client.Set(ctx, s.key(challengeSession), strings.ToLower(username), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// consumeScript deletes the record only when it belongs to ARGV[1].
// Returns 1 when consumed, 0 when missing, -1 on an owner mismatch.
var consumeScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if not owner then
	return 0
end
if owner ~= ARGV[1] then
	return -1
end
redis.call("DEL", KEYS[1])
return 1
`)

// Consume removes the challenge if it was issued to username. A mismatched
// username leaves the record in place for its owner.
func (s *ChallengeStore) Consume(ctx context.Context, challengeSession, username string) error {
	res, err := consumeScript.Run(ctx, s.client, []string{s.key(challengeSession)}, strings.ToLower(username)).Int()
	if err != nil {
		return fmt.Errorf("failed to consume challenge: %w", err)
	}
	if res != 1 {
		return ErrChallengeNotFound
	}
	return nil
}

func (s *ChallengeStore) key(challengeSession string) string {
	sum := sha256.Sum256([]byte(challengeSession))
	return "challenge:" + hex.EncodeToString(sum[:])
}
