package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/chongxue30/stu-agent/pkg/response"
)

// UserRateLimiter 按用户限制推理请求频率
// 每个用户一个令牌桶，长时间不活跃的桶会被清理
type UserRateLimiter struct {
	mu       sync.Mutex
	limiters map[int64]*userLimiter
	rps      rate.Limit
	burst    int
	idle     time.Duration
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewUserRateLimiter 创建限流器
// 参数:
//   - rps: 每秒允许的请求数，<= 0 表示不限流
//   - burst: 突发容量
func NewUserRateLimiter(rps float64, burst int) *UserRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &UserRateLimiter{
		limiters: make(map[int64]*userLimiter),
		rps:      limit,
		burst:    burst,
		idle:     10 * time.Minute,
	}
}

// Allow 判断用户本次请求是否放行
func (l *UserRateLimiter) Allow(userID int64) bool {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	ul, ok := l.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.limiters[userID] = ul
	}
	ul.lastSeen = now

	// 顺便清理闲置的桶
	for id, other := range l.limiters {
		if now.Sub(other.lastSeen) > l.idle {
			delete(l.limiters, id)
		}
	}
	return ul.limiter.AllowN(now, 1)
}

// Middleware 返回限流中间件，需放在 AuthMiddleware 之后
func (l *UserRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(GetUserID(c)) {
			response.TooManyRequests(c)
			return
		}
		c.Next()
	}
}
