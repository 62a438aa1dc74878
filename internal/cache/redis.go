// Package cache 提供 Redis 缓存操作的封装
// 处理 JWT 黑名单和对话级推理锁等需要快速访问的数据
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chongxue30/stu-agent/internal/config"
)

// RedisCache 封装 Redis 客户端，提供业务相关的缓存操作
type RedisCache struct {
	client *redis.Client // Redis 客户端实例
}

// NewRedisCache 创建 RedisCache 实例
// 参数:
//   - cfg: 应用配置（包含 Redis 连接信息）
//
// 返回:
//   - *RedisCache: 缓存实例
//   - error: 连接错误
func NewRedisCache(cfg *config.Config) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.Username, // 阿里云 Redis 需要用户名
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// NewWithClient 使用已有客户端创建缓存，测试里配合 miniredis 使用
func NewWithClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Close 关闭 Redis 连接
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Ping 检查 Redis 连接
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// ==================== JWT 黑名单 ====================
// 用于实现 Token 强制失效（登出）功能

func blacklistKey(tokenHash string) string {
	return fmt.Sprintf("jwt:blacklist:%s", tokenHash)
}

// BlacklistToken 将 Token 加入黑名单
// 登出时调用，使当前 Token 失效
// 参数:
//   - ctx: 上下文
//   - tokenHash: Token 的哈希值（不存储原始 Token）
//   - expireAt: Token 的原始过期时间
//
// 返回:
//   - error: Redis 操作错误
func (c *RedisCache) BlacklistToken(ctx context.Context, tokenHash string, expireAt time.Time) error {
	ttl := time.Until(expireAt)
	if ttl <= 0 {
		// Token 已过期，无需加入黑名单
		return nil
	}
	// TTL 与 Token 剩余有效期一致，过期后自动删除
	return c.client.Set(ctx, blacklistKey(tokenHash), "1", ttl).Err()
}

// IsTokenBlacklisted 检查 Token 是否在黑名单中
// JWT 验证中间件调用
func (c *RedisCache) IsTokenBlacklisted(ctx context.Context, tokenHash string) bool {
	return c.client.Exists(ctx, blacklistKey(tokenHash)).Val() > 0
}

// ==================== 对话推理锁 ====================
// 同一对话同一时间只允许一轮推理，多实例部署时同样生效

func turnKey(conversationID int64) string {
	return fmt.Sprintf("chat:turn:%d", conversationID)
}

// 只删除自己持有的锁，避免锁过期后误删别人的锁
var releaseTurnScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireTurn 尝试获取对话推理锁
// 参数:
//   - ctx: 上下文
//   - conversationID: 对话ID
//   - ttl: 锁的最长持有时间，进程崩溃后锁会自动过期
//
// 返回:
//   - string: 锁令牌，释放时需要传回
//   - bool: 是否获取成功，false 表示对话正在推理中
//   - error: Redis 操作错误
func (c *RedisCache) AcquireTurn(ctx context.Context, conversationID int64, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, turnKey(conversationID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseTurn 释放对话推理锁，令牌不匹配时什么也不做
func (c *RedisCache) ReleaseTurn(ctx context.Context, conversationID int64, token string) error {
	err := releaseTurnScript.Run(ctx, c.client, []string{turnKey(conversationID)}, token).Err()
	if err == redis.Nil {
		return nil
	}
	return err
}
