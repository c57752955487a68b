package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"smallbiznis-gamification/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

const (
	PrefixEntitlement = "RWD"
	PrefixCampaign    = "CMP"
)

type Generator interface {
	NextEntitlementCode(ctx context.Context, companyID int64) (string, error)
	NextCampaignCode(ctx context.Context, companyID int64) (string, error)
}

type RedisGenerator struct {
	rdb *redis.Client
	now func() time.Time
}

type Params struct {
	fx.In

	Redis *redis.Client
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb: p.Redis,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (g *RedisGenerator) NextEntitlementCode(ctx context.Context, companyID int64) (string, error) {
	return g.nextDailyCode(ctx, PrefixEntitlement, companyID)
}

func (g *RedisGenerator) NextCampaignCode(ctx context.Context, companyID int64) (string, error) {
	return g.nextDailyCode(ctx, PrefixCampaign, companyID)
}

// nextDailyCode returns PREFIX-YYMMDD-SEQ followed by two random characters.
// The counter resets every UTC day.
func (g *RedisGenerator) nextDailyCode(ctx context.Context, prefix string, companyID int64) (string, error) {
	now := g.now()
	today := now.Format("060102")
	key := rediskey.BuildSequenceKey(prefix, companyID, today)

	seq, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return "", err
	}

	if seq == 1 {
		endOfDay := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
		_ = g.rdb.ExpireAt(ctx, key, endOfDay).Err()
	}

	return formatCode(prefix, today, seq)
}

func formatCode(prefix, day string, seq int64) (string, error) {
	encoded := strings.ToUpper(strconv.FormatInt(seq, 36))
	if len(encoded) < 3 {
		encoded = strings.Repeat("0", 3-len(encoded)) + encoded
	}

	suffix, err := randomAlphaNumeric(2)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%s-%s%s", prefix, day, encoded, suffix), nil
}

func randomAlphaNumeric(n int) (string, error) {
	const chars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		b[i] = chars[num.Int64()]
	}
	return string(b), nil
}

// Static returns codes from a local counter. Used where Redis is absent.
type Static struct {
	n atomic.Int64
}

func (s *Static) NextEntitlementCode(ctx context.Context, companyID int64) (string, error) {
	return formatCode(PrefixEntitlement, "000000", s.n.Add(1))
}

func (s *Static) NextCampaignCode(ctx context.Context, companyID int64) (string, error) {
	return formatCode(PrefixCampaign, "000000", s.n.Add(1))
}
