// Package delivery 选择缓存变体并生成终结性的响应结果。
package delivery

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sitecache/sitecache/internal/cache"
)

const (
	// HeaderHandler 标记响应由缓存直接提供。
	HeaderHandler = "X-Cache-Handler"
	// HandlerName 是 HeaderHandler 的取值。
	HandlerName = "sitecache"

	contentTypeHTML = "text/html; charset=utf-8"
	varyValue       = "Accept, Accept-Encoding"
)

// Request 是投递决策所需的请求头子集。
type Request struct {
	IfModifiedSince string
	Accept          string
	AcceptEncoding  string
}

// Outcome 是一次投递的完整结果，调用方写出后不得再继续处理请求。
type Outcome struct {
	Status  int
	Header  http.Header
	Body    []byte
	Variant cache.Variant
}

// Terminal 恒为 true：缓存命中后请求处理到此结束。
func (Outcome) Terminal() bool { return true }

// NotModified 表示结果为 304。
func (o Outcome) NotModified() bool { return o.Status == http.StatusNotModified }

// Engine 基于 cache.Store 的内容做协商。
type Engine struct {
	store cache.Store
}

// NewEngine 构造投递引擎。
func NewEngine(store cache.Store) *Engine {
	return &Engine{store: store}
}

// Serve 依次尝试 304、WebP、gzip 与 plain。条目不存在时返回 cache.ErrNotFound。
func (e *Engine) Serve(entry cache.Entry, req Request) (Outcome, error) {
	modTime, err := e.store.ModTime(entry)
	if err != nil {
		return Outcome{}, err
	}

	header := http.Header{}
	header.Set(HeaderHandler, HandlerName)

	if notModified(req.IfModifiedSince, modTime) {
		return Outcome{Status: http.StatusNotModified, Header: header, Variant: cache.VariantPlain}, nil
	}

	acceptsGzip := accepts(req.AcceptEncoding, "gzip")
	for _, variant := range candidates(accepts(req.Accept, "webp"), acceptsGzip) {
		body, err := e.read(entry, variant)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		header.Set("Content-Type", contentTypeHTML)
		header.Set("Last-Modified", modTime.UTC().Format(http.TimeFormat))
		header.Set("Vary", varyValue)
		if variant.Gzipped() {
			header.Set("Content-Encoding", "gzip")
		}
		return Outcome{Status: http.StatusOK, Header: header, Body: body, Variant: variant}, nil
	}
	return Outcome{}, cache.ErrNotFound
}

func (e *Engine) read(entry cache.Entry, variant cache.Variant) ([]byte, error) {
	result, err := e.store.Open(entry, variant)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()
	body, err := io.ReadAll(result.Reader)
	if err != nil {
		return nil, fmt.Errorf("read %s variant: %w", variant, err)
	}
	return body, nil
}

// candidates 按优先级列出可投递的变体，plain 始终兜底。
func candidates(webp, gzip bool) []cache.Variant {
	order := make([]cache.Variant, 0, 4)
	if webp {
		if gzip {
			order = append(order, cache.VariantWebPGzip)
		}
		order = append(order, cache.VariantWebP)
	}
	if gzip {
		order = append(order, cache.VariantGzip)
	}
	return append(order, cache.VariantPlain)
}

// notModified 以秒为精度比较，HTTP 日期本身没有亚秒信息。
func notModified(header string, modTime time.Time) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	ims, err := http.ParseTime(header)
	if err != nil {
		return false
	}
	return ims.Unix() >= modTime.Unix()
}

// accepts 判断逗号分隔的协商头是否接受 token（匹配子类型，如 image/webp）。
// q=0 表示明确拒绝。
func accepts(header, token string) bool {
	for _, part := range strings.Split(strings.ToLower(header), ",") {
		value, params, _ := strings.Cut(part, ";")
		value = strings.TrimSpace(value)
		if value != token && !strings.HasSuffix(value, "/"+token) {
			continue
		}
		if rejected(params) {
			continue
		}
		return true
	}
	return false
}

func rejected(params string) bool {
	for _, param := range strings.Split(params, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || strings.TrimSpace(key) != "q" {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		return err == nil && q <= 0
	}
	return false
}
