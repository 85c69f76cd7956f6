package invalidation

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sitecache/sitecache/internal/cache"
)

// SizeTTL 是缓存体积估算的有效期。
const SizeTTL = 15 * time.Minute

// SizeEstimate 记忆 cache.Store.Size 的结果，并发的重新计算只执行一次。
type SizeEstimate struct {
	store cache.Store
	dir   string
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu         sync.Mutex
	value      int64
	expires    time.Time
	generation uint64
}

// NewSizeEstimate 统计 dir 下的缓存体积。
func NewSizeEstimate(store cache.Store, dir string) *SizeEstimate {
	return &SizeEstimate{store: store, dir: dir, ttl: SizeTTL, now: time.Now}
}

// Get 返回记忆值；过期或被 Invalidate 后重新遍历目录。
func (s *SizeEstimate) Get(ctx context.Context) (int64, error) {
	s.mu.Lock()
	if !s.expires.IsZero() && s.now().Before(s.expires) {
		value := s.value
		s.mu.Unlock()
		return value, nil
	}
	generation := s.generation
	s.mu.Unlock()

	ch := s.group.DoChan("size", func() (any, error) {
		size, err := s.store.Size(s.dir)
		if err != nil {
			return int64(0), err
		}
		s.mu.Lock()
		// 计算期间发生过清空时结果已失效，不写回。
		if s.generation == generation {
			s.value = size
			s.expires = s.now().Add(s.ttl)
		}
		s.mu.Unlock()
		return size, nil
	})

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int64), nil
	}
}

// Invalidate 丢弃记忆值。
func (s *SizeEstimate) Invalidate() {
	s.mu.Lock()
	s.generation++
	s.expires = time.Time{}
	s.value = 0
	s.mu.Unlock()
	s.group.Forget("size")
}
