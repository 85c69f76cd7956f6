// Package bypass 决定一个请求是否绕过缓存。
package bypass

import (
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sitecache/sitecache/internal/settings"
)

// 页面类型，由 Classify 或源站响应头给出。
const (
	KindSearch    = "search"
	KindNotFound  = "404"
	KindFeed      = "feed"
	KindTrackback = "trackback"
	KindRobots    = "robots"
	KindPreview   = "preview"
)

// Request 描述决策所需的请求信息。
type Request struct {
	Method           string
	Path             string
	Query            url.Values
	Cookies          []string
	Kind             string
	PasswordRequired bool
	ContentID        int64
}

// Decision 是 Decide 的结果；Reason 仅在 Bypass 为 true 时非空。
type Decision struct {
	Bypass bool   `json:"bypass"`
	Reason string `json:"reason,omitempty"`
}

// Hook 返回 true 时强制绕过缓存。
type Hook func(Request) bool

// Policy 持有外部注册的钩子；规则本身来自设置快照。
type Policy struct {
	mu    sync.RWMutex
	hooks []Hook
}

// NewPolicy 返回没有钩子的策略。
func NewPolicy() *Policy {
	return &Policy{}
}

// AddHook 注册一个强制绕过钩子。
func (p *Policy) AddHook(h Hook) {
	if h == nil {
		return
	}
	p.mu.Lock()
	p.hooks = append(p.hooks, h)
	p.mu.Unlock()
}

// Decide 按固定顺序检查各规则，命中第一条即返回。
func (p *Policy) Decide(req Request, snap *settings.Snapshot) Decision {
	if p.hooked(req) {
		return bypass("hook")
	}
	if req.Kind != "" {
		return bypass("kind:" + req.Kind)
	}
	if req.PasswordRequired {
		return bypass("password")
	}
	if req.Method != http.MethodGet {
		return bypass("method")
	}
	if snap == nil {
		snap = settings.Compile(settings.CacheSettings{})
	}
	for key := range req.Query {
		if !snap.IncludedQuery.MatchString(key) {
			return bypass("query")
		}
	}
	for _, name := range req.Cookies {
		if snap.ExcludedCookie.MatchString(name) {
			return bypass("cookie")
		}
	}
	if snap.Excluded(req.ContentID) {
		return bypass("excluded_id")
	}
	if snap.ExcludedPath != nil && snap.ExcludedPath.MatchString(req.Path) {
		return bypass("excluded_path")
	}
	return Decision{}
}

func (p *Policy) hooked(req Request) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, h := range p.hooks {
		if h(req) {
			return true
		}
	}
	return false
}

func bypass(reason string) Decision {
	return Decision{Bypass: true, Reason: reason}
}

// Classify 仅凭路径与查询串推断页面类型；404 与密码保护需要源站响应才能确定。
func Classify(path string, query url.Values) string {
	lower := strings.ToLower(strings.TrimSuffix(path, "/"))
	switch {
	case lower == "/robots.txt":
		return KindRobots
	case query.Has("s"):
		return KindSearch
	case query.Get("preview") == "true":
		return KindPreview
	case lower == "/feed" || strings.HasSuffix(lower, "/feed") || strings.Contains(lower, "/feed/"):
		return KindFeed
	case strings.HasSuffix(lower, "/trackback"):
		return KindTrackback
	}
	return ""
}

// MissingTrailingSlash 在链接结构以 / 结尾而请求路径没有时返回 true，
// 这类请求交给源站处理跳转。
func MissingTrailingSlash(permalinkStructure, requestURI string) bool {
	if !strings.HasSuffix(permalinkStructure, "/") {
		return false
	}
	p := requestURI
	if idx := strings.IndexAny(p, "?#"); idx >= 0 {
		p = p[:idx]
	}
	return !strings.HasSuffix(p, "/")
}
