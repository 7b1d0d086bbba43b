package application

import (
	"context"
	"fmt"
	"time"
)

// BalanceCache 余额快照的短时缓存。读路径容忍至多一个 TTL 的陈旧，
// 写路径在重算落库后主动失效。
type BalanceCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

func balanceCacheKey(clientID uint64) string {
	return fmt.Sprintf("cargoledger:balances:%d", clientID)
}
