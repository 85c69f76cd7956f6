package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/sitecache/sitecache/internal/server"
)

// fetch 将当前请求原样转发给源站。
func (h *Handler) fetch(c fiber.Ctx) (*http.Response, error) {
	req, err := h.buildOriginRequest(c)
	if err != nil {
		return nil, err
	}
	return h.client.Do(req)
}

func (h *Handler) buildOriginRequest(c fiber.Ctx) (*http.Request, error) {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	target := *h.origin
	target.Path = strings.TrimRight(h.origin.Path, "/") + requestPath(c)
	target.RawPath = ""
	target.RawQuery = string(c.Request().URI().QueryString())

	req, err := http.NewRequestWithContext(ctx, c.Method(), target.String(), bodyReader(c.Body()))
	if err != nil {
		return nil, err
	}

	server.CopyHeaders(req.Header, fiberHeadersAsHTTP(c))
	// 让 Transport 自行协商压缩并解压，写入缓存的总是原始 HTML。
	req.Header.Del("Accept-Encoding")
	req.Host = h.origin.Host
	req.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			req.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			req.Header.Set("X-Forwarded-For", ip)
		}
	}
	req.Header.Set("X-Forwarded-Proto", c.Scheme())
	return req, nil
}

func requestPath(c fiber.Ctx) string {
	pathVal := string(c.Request().URI().Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

// rawRequestPath 返回客户端发送的原始（未解码）路径。Path() 已解码并规整过，
// 再交给 Resolve 解码会让 %25 转义折叠到其它条目上。
func rawRequestPath(c fiber.Ctx) string {
	if raw := c.Request().URI().PathOriginal(); len(raw) > 0 {
		return string(raw)
	}
	return "/"
}

// requestCookies 只返回 cookie 名称，绕过规则不关心取值。
func requestCookies(c fiber.Ctx) []string {
	raw := c.Get(fiber.HeaderCookie)
	if raw == "" {
		return nil
	}
	parsed := (&http.Request{Header: http.Header{"Cookie": {raw}}}).Cookies()
	names := make([]string, 0, len(parsed))
	for _, cookie := range parsed {
		names = append(names, cookie.Name)
	}
	return names
}

func bodyReader(b []byte) io.Reader {
	if len(b) == 0 {
		return http.NoBody
	}
	return bytes.NewReader(append([]byte(nil), b...))
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || isInternalHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}

func isInternalHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case HeaderContentID, HeaderKind, HeaderPassword, "Content-Length":
		return true
	}
	return false
}
