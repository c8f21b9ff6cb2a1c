package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"identrisk/internal/fraud/models"
)

const (
	fieldCreatedAt = "created_at"
	fieldLastIP    = "last_ip"
	fieldLastUA    = "last_user_agent"
)

// RedisStore keeps three keys per user: a sorted index of transaction ids by
// time, a hash of id to transaction JSON, and a profile hash.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	max    int
}

func NewRedisStore(client *redis.Client, ttl time.Duration, maxTransactions int) *RedisStore {
	if maxTransactions <= 0 {
		maxTransactions = DefaultMaxTransactions
	}
	return &RedisStore{client: client, ttl: ttl, max: maxTransactions}
}

func indexKey(userID string) string   { return "history:" + userID + ":index" }
func txnKey(userID string) string     { return "history:" + userID + ":txns" }
func profileKey(userID string) string { return "history:" + userID + ":profile" }

func (s *RedisStore) Load(ctx context.Context, userID string) (*models.UserHistory, error) {
	var (
		profile *redis.MapStringStringCmd
		ids     *redis.StringSliceCmd
	)
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		profile = p.HGetAll(ctx, profileKey(userID))
		ids = p.ZRange(ctx, indexKey(userID), 0, -1)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load user history: %w", err)
	}

	h := &models.UserHistory{UserID: userID}
	fields := profile.Val()
	if raw := fields[fieldCreatedAt]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			t = t.UTC()
			h.AccountCreatedAt = &t
		}
	}
	h.LastIPAddress = fields[fieldLastIP]
	h.LastUserAgent = fields[fieldLastUA]

	if len(ids.Val()) == 0 {
		return h, nil
	}
	raws, err := s.client.HMGet(ctx, txnKey(userID), ids.Val()...).Result()
	if err != nil {
		return nil, fmt.Errorf("load user transactions: %w", err)
	}
	for _, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var t models.PastTransaction
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			continue
		}
		h.Transactions = append(h.Transactions, t)
	}
	return h, nil
}

func (s *RedisStore) RecordTransaction(ctx context.Context, userID string, txn models.PastTransaction, md *models.Metadata) error {
	raw, err := json.Marshal(txn)
	if err != nil {
		return fmt.Errorf("marshal transaction: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, indexKey(userID), redis.Z{Score: float64(txn.OccurredAt.UnixMilli()), Member: txn.TransactionID})
		p.HSet(ctx, txnKey(userID), txn.TransactionID, raw)
		if md != nil && md.IPAddress != "" {
			p.HSet(ctx, profileKey(userID), fieldLastIP, md.IPAddress)
		}
		if md != nil && md.UserAgent != "" {
			p.HSet(ctx, profileKey(userID), fieldLastUA, md.UserAgent)
		}
		s.expire(ctx, p, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return s.trim(ctx, userID)
}

// trim drops the oldest transactions beyond the cap.
func (s *RedisStore) trim(ctx context.Context, userID string) error {
	stale, err := s.client.ZRange(ctx, indexKey(userID), 0, int64(-s.max-1)).Result()
	if err != nil {
		return fmt.Errorf("trim user history: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}
	members := make([]any, len(stale))
	for i, id := range stale {
		members[i] = id
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, indexKey(userID), members...)
		p.HDel(ctx, txnKey(userID), stale...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("trim user history: %w", err)
	}
	return nil
}

func (s *RedisStore) RegisterUser(ctx context.Context, userID string, createdAt time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, profileKey(userID), fieldCreatedAt, createdAt.UTC().Format(time.RFC3339Nano))
		s.expire(ctx, p, userID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

func (s *RedisStore) expire(ctx context.Context, p redis.Pipeliner, userID string) {
	if s.ttl <= 0 {
		return
	}
	p.Expire(ctx, indexKey(userID), s.ttl)
	p.Expire(ctx, txnKey(userID), s.ttl)
	p.Expire(ctx, profileKey(userID), s.ttl)
}
