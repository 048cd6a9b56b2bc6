package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/wa-platform/core/domain/flow"
	"github.com/wa-platform/core/infrastructure/valkey"
)

const (
	flowSessionTTL = 24 * time.Hour
	lockSuffix     = ":lock"
	lockTTL        = 5 * time.Second
	lockWaitTime   = 50 * time.Millisecond
	maxLockRetries = 40 // interpreter steps can run longer than a session UpdateField
)

const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// ValkeySessionStore implements flow.Store on Valkey, with a distributed
// lock per (tenant, contact) key so at most one interpreter step runs for
// a given conversation at a time, even across process instances (§5).
type ValkeySessionStore struct {
	client *valkey.Client
	prefix string
	ttl    time.Duration
}

func NewValkeySessionStore(client *valkey.Client) *ValkeySessionStore {
	return &ValkeySessionStore{
		client: client,
		prefix: client.Key("flow_session") + ":",
		ttl:    flowSessionTTL,
	}
}

func (s *ValkeySessionStore) inner() valkeylib.Client { return s.client.Inner() }

func (s *ValkeySessionStore) fullKey(key string) string { return s.prefix + key }
func (s *ValkeySessionStore) lockKey(key string) string { return s.fullKey(key) + lockSuffix }

func (s *ValkeySessionStore) Get(ctx context.Context, tenantID, contactID string) (*flow.Session, bool, error) {
	key := s.fullKey(sessionKey(tenantID, contactID))
	cmd := s.inner().B().Get().Key(key).Build()
	data, err := s.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("flow session get: %w", err)
	}
	var sess flow.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, false, fmt.Errorf("flow session unmarshal: %w", err)
	}
	return &sess, true, nil
}

func (s *ValkeySessionStore) Save(ctx context.Context, sess *flow.Session) error {
	sess.LastInteraction = time.Now()
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("flow session marshal: %w", err)
	}
	key := s.fullKey(sessionKey(sess.TenantID, sess.ContactID))
	cmd := s.inner().B().Set().Key(key).Value(string(data)).Ex(s.ttl).Build()
	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("flow session save: %w", err)
	}
	return nil
}

func (s *ValkeySessionStore) Delete(ctx context.Context, tenantID, contactID string) error {
	key := s.fullKey(sessionKey(tenantID, contactID))
	cmd := s.inner().B().Del().Key(key).Build()
	return s.inner().Do(ctx, cmd).Error()
}

func (s *ValkeySessionStore) WithLock(ctx context.Context, tenantID, contactID string, fn func(ctx context.Context) error) error {
	key := sessionKey(tenantID, contactID)
	token, err := s.acquireLock(ctx, key)
	if err != nil {
		return fmt.Errorf("flow session lock: %w", err)
	}
	defer func() {
		if releaseErr := s.releaseLock(ctx, key, token); releaseErr != nil {
			logrus.Warnf("flow session: failed to release lock for %s: %v", key, releaseErr)
		}
	}()
	return fn(ctx)
}

func (s *ValkeySessionStore) acquireLock(ctx context.Context, key string) (string, error) {
	lockKey := s.lockKey(key)
	token := uuid.New().String()

	for i := 0; i < maxLockRetries; i++ {
		cmd := s.inner().B().Set().Key(lockKey).Value(token).Nx().Ex(lockTTL).Build()
		if err := s.inner().Do(ctx, cmd).Error(); err == nil {
			return token, nil
		}

		sleep := lockWaitTime + time.Duration(rand.Intn(20))*time.Millisecond
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleep):
		}
	}
	return "", errors.New("flow session: lock acquisition timed out")
}

func (s *ValkeySessionStore) releaseLock(ctx context.Context, key, token string) error {
	cmd := s.inner().B().Eval().Script(releaseLockScript).Numkeys(1).Key(s.lockKey(key)).Arg(token).Build()
	return s.inner().Do(ctx, cmd).Error()
}
