package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/sitecache/sitecache/internal/bypass"
	"github.com/sitecache/sitecache/internal/cache"
	"github.com/sitecache/sitecache/internal/delivery"
	"github.com/sitecache/sitecache/internal/logging"
	"github.com/sitecache/sitecache/internal/server"
	"github.com/sitecache/sitecache/internal/settings"
	"github.com/sitecache/sitecache/internal/transform"
)

// 源站在响应中声明页面属性的头部，转发给客户端之前会被移除。
const (
	HeaderContentID = "X-Sitecache-Content-Id"
	HeaderKind      = "X-Sitecache-Kind"
	HeaderPassword  = "X-Sitecache-Password"

	// HeaderStatus 标记未经缓存处理的响应。
	HeaderStatus = "X-Cache-Handler-Status"
)

// SettingsSource 提供当前设置快照。
type SettingsSource interface {
	Current() *settings.Snapshot
}

// Options 汇总 Handler 的依赖。
type Options struct {
	Client             *http.Client
	Logger             *logrus.Logger
	Origin             string
	Store              cache.Store
	Resolver           *cache.Resolver
	Engine             *delivery.Engine
	Bypass             *bypass.Policy
	Settings           SettingsSource
	PermalinkStructure string
}

// Handler 负责 orchestrate “缓存命中 → 回源 → 写缓存” 的全流程，
// 对外暴露 Fiber handler，内部复用共享 http.Client 与磁盘缓存。
type Handler struct {
	client    *http.Client
	logger    *logrus.Logger
	origin    *url.URL
	store     cache.Store
	resolver  *cache.Resolver
	engine    *delivery.Engine
	bypass    *bypass.Policy
	settings  SettingsSource
	permalink string
}

// NewHandler constructs a page handler with shared HTTP client/logger/store.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Client == nil || opts.Store == nil || opts.Resolver == nil || opts.Settings == nil {
		return nil, errors.New("client, store, resolver and settings are required")
	}
	origin, err := url.Parse(opts.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid origin %q", opts.Origin)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Engine == nil {
		opts.Engine = delivery.NewEngine(opts.Store)
	}
	if opts.Bypass == nil {
		opts.Bypass = bypass.NewPolicy()
	}
	return &Handler{
		client:    opts.Client,
		logger:    opts.Logger,
		origin:    origin,
		store:     opts.Store,
		resolver:  opts.Resolver,
		engine:    opts.Engine,
		bypass:    opts.Bypass,
		settings:  opts.Settings,
		permalink: opts.PermalinkStructure,
	}, nil
}

// pageRequest 是一次请求内不变的输入：设置快照只读取一次。
type pageRequest struct {
	snap      *settings.Snapshot
	bypass    bypass.Request
	requestID string
	started   time.Time
}

// Handle 执行绕过判断、缓存查找、回源与写缓存，任何阶段出错都会输出结构化日志。
func (h *Handler) Handle(c fiber.Ctx) error {
	req := pageRequest{
		snap:      h.settings.Current(),
		requestID: server.RequestID(c),
		started:   time.Now(),
	}
	if req.snap == nil {
		req.snap = settings.Compile(settings.CacheSettings{})
	}
	path := requestPath(c)
	query, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	req.bypass = bypass.Request{
		Method:  c.Method(),
		Path:    path,
		Query:   query,
		Cookies: requestCookies(c),
		Kind:    bypass.Classify(path, query),
	}

	if strings.TrimSpace(h.permalink) == "" {
		return h.passThrough(c, req, "permalinks_disabled")
	}
	if decision := h.bypass.Decide(req.bypass, req.snap); decision.Bypass {
		return h.passThrough(c, req, decision.Reason)
	}

	entry, err := h.resolver.Resolve(rawRequestPath(c))
	if err != nil {
		h.logResult(req, "", fiber.StatusNotFound, false, err)
		return writeError(c, fiber.StatusNotFound, "invalid_path")
	}

	missingSlash := bypass.MissingTrailingSlash(h.permalink, string(c.Request().RequestURI()))
	if !missingSlash && h.store.Exists(entry) && !h.store.Expired(entry, req.snap.TTL) {
		out, err := h.engine.Serve(entry, delivery.Request{
			IfModifiedSince: c.Get(fiber.HeaderIfModifiedSince),
			Accept:          c.Get(fiber.HeaderAccept),
			AcceptEncoding:  c.Get(fiber.HeaderAcceptEncoding),
		})
		switch {
		case err == nil:
			h.logResult(req, out.Variant.String(), out.Status, true, nil)
			return writeOutcome(c, out)
		case errors.Is(err, cache.ErrNotFound):
			// 条目在检查后被删除，按未命中处理。
		default:
			h.logger.WithError(err).WithFields(logging.RequestFields(path, "", true)).Warn("cache_read_failed")
		}
	}

	return h.fetchAndStore(c, req, entry, !missingSlash)
}

func (h *Handler) passThrough(c fiber.Ctx, req pageRequest, reason string) error {
	resp, err := h.fetch(c)
	if err != nil {
		h.logResult(req, "", 0, false, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logResult(req, "", resp.StatusCode, false, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	copyResponseHeaders(c, resp.Header)
	c.Set(HeaderStatus, "BYPASS")
	h.logger.WithFields(logging.RequestFields(req.bypass.Path, "", false)).
		WithField("reason", reason).Debug("cache_bypass")
	h.logResult(req, "", resp.StatusCode, false, nil)
	return c.Status(resp.StatusCode).Send(body)
}

func (h *Handler) fetchAndStore(c fiber.Ctx, req pageRequest, entry cache.Entry, storable bool) error {
	resp, err := h.fetch(c)
	if err != nil {
		h.logResult(req, "", 0, false, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		h.logResult(req, "", resp.StatusCode, false, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}

	if storable && h.cacheable(req, resp, body) {
		content, opts := prepare(body, req.snap)
		if err := h.store.Store(h.context(c), entry, content, opts); err != nil {
			if !errors.Is(err, cache.ErrEmptyContent) {
				h.logResult(req, "", resp.StatusCode, false, err)
				return writeError(c, fiber.StatusInternalServerError, "cache_write_failed")
			}
		}
		c.Set(HeaderStatus, "MISS")
	} else {
		c.Set(HeaderStatus, "BYPASS")
	}

	copyResponseHeaders(c, resp.Header)
	h.logResult(req, "", resp.StatusCode, false, nil)
	return c.Status(resp.StatusCode).Send(body)
}

// cacheable 用源站声明的页面属性重新执行一次绕过判断。
func (h *Handler) cacheable(req pageRequest, resp *http.Response, body []byte) bool {
	if resp.StatusCode != http.StatusOK || len(body) == 0 {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(resp.Header.Get("Content-Type")), "text/html") {
		return false
	}
	rendered := req.bypass
	if kind := strings.TrimSpace(resp.Header.Get(HeaderKind)); kind != "" {
		rendered.Kind = kind
	}
	if id, err := strconv.ParseInt(resp.Header.Get(HeaderContentID), 10, 64); err == nil {
		rendered.ContentID = id
	}
	rendered.PasswordRequired = isTruthy(resp.Header.Get(HeaderPassword))

	decision := h.bypass.Decide(rendered, req.snap)
	if decision.Bypass {
		h.logger.WithFields(logging.RequestFields(req.bypass.Path, "", false)).
			WithField("reason", decision.Reason).Debug("cache_bypass")
	}
	return !decision.Bypass
}

// prepare 生成写盘内容：先压缩 HTML，再由压缩结果派生 WebP 变体。
func prepare(body []byte, snap *settings.Snapshot) ([]byte, cache.StoreOptions) {
	content := transform.Minify(body, snap.Settings.MinifyLevel)
	opts := cache.StoreOptions{Gzip: snap.Settings.Compress}
	if snap.Settings.WebP {
		opts.WebP = transform.WebP(content)
	}
	return content, opts
}

func (h *Handler) context(c fiber.Ctx) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func (h *Handler) logResult(req pageRequest, variant string, status int, cacheHit bool, err error) {
	fields := logging.RequestFields(req.bypass.Path, variant, cacheHit)
	fields["method"] = req.bypass.Method
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(req.started).Milliseconds()
	if req.requestID != "" {
		fields["request_id"] = req.requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("page_failed")
		return
	}
	h.logger.WithFields(fields).Info("page_complete")
}

func writeOutcome(c fiber.Ctx, out delivery.Outcome) error {
	for key, values := range out.Header {
		for _, value := range values {
			c.Set(key, value)
		}
	}
	c.Status(out.Status)
	if out.NotModified() {
		return nil
	}
	return c.Send(out.Body)
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
