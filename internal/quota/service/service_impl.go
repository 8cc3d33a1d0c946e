package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	quotadomain "github.com/netprofile/netbill/internal/quota/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Redis  *redis.Client `optional:"true"`
	Log    *zap.Logger
	Config *quotadomain.Config
}

type service struct {
	redis *redis.Client
	log   *zap.Logger
	cfg   *quotadomain.Config
}

func NewService(p ServiceParam) quotadomain.Service {
	return &service{
		redis: p.Redis,
		log:   p.Log.Named("quota.service"),
		cfg:   p.Config,
	}
}

func (s *service) key(accountID snowflake.ID) string {
	return fmt.Sprintf("%s:%s", s.cfg.KeyPrefix, accountID.String())
}

func (s *service) enabled() bool {
	return s.cfg.Enabled && s.redis != nil
}

func (s *service) CanStartSession(ctx context.Context, accountID snowflake.ID, limit uint32) error {
	if !s.enabled() {
		return nil
	}

	key := s.key(accountID)

	// Atomic INCR
	val, err := s.redis.Incr(ctx, key).Result()
	if err != nil {
		s.log.Error("failed to increment session counter", zap.Stringer("account_id", accountID), zap.Error(err))
		// Fail open so a Redis outage does not lock users out
		return nil
	}

	if s.cfg.SessionTTL > 0 {
		s.redis.Expire(ctx, key, s.cfg.SessionTTL)
	}

	if limit > 0 && val > int64(limit) {
		if err := s.redis.Decr(ctx, key).Err(); err != nil {
			s.log.Warn("failed to release rejected session slot", zap.Stringer("account_id", accountID), zap.Error(err))
		}
		return fmt.Errorf("%w: %d of %d in use", quotadomain.ErrSimultaneousLimitExceeded, val-1, limit)
	}

	return nil
}

func (s *service) EndSession(ctx context.Context, accountID snowflake.ID) error {
	if !s.enabled() {
		return nil
	}

	key := s.key(accountID)
	val, err := s.redis.Decr(ctx, key).Result()
	if err != nil {
		s.log.Error("failed to decrement session counter", zap.Stringer("account_id", accountID), zap.Error(err))
		return nil
	}
	if val <= 0 {
		// Stop records without a matching start would leave the counter negative.
		s.redis.Del(ctx, key)
	}
	return nil
}

func (s *service) ActiveSessions(ctx context.Context, accountID snowflake.ID) (int64, error) {
	if !s.enabled() {
		return 0, quotadomain.ErrQuotaDisabled
	}

	val, err := s.redis.Get(ctx, s.key(accountID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}
