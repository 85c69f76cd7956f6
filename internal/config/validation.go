package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sitecache/sitecache/internal/settings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if err := validateOrigin(g.Origin); err != nil {
		return fmt.Errorf("Global.Origin: %w", err)
	}
	if strings.TrimSpace(g.AdminToken) == "" {
		return newFieldError("Global.AdminToken", "不能为空")
	}
	if g.PermalinkStructure != "" && !strings.HasPrefix(g.PermalinkStructure, "/") {
		return newFieldError("Global.PermalinkStructure", "必须以 / 开头")
	}
	for kind, tmpl := range c.Permalinks {
		if tmpl != "" && !strings.HasPrefix(tmpl, "/") {
			return newFieldError("Permalinks."+kind, "必须以 / 开头")
		}
	}

	cache := c.Cache
	if cache.TTLHours < 0 {
		return newFieldError(cacheField("TTLHours"), "不能为负数")
	}
	if !cache.MinifyLevel.Valid() {
		return newFieldError(cacheField("MinifyLevel"), "仅支持 0/1/2")
	}
	if _, err := settings.ParseIDs(cache.ExcludedIDs); err != nil {
		return newFieldError(cacheField("ExcludedIDs"), err.Error())
	}
	for field, raw := range map[string]string{
		"ExcludedPathRegex":   cache.ExcludedPathRegex,
		"ExcludedCookieRegex": cache.ExcludedCookieRegex,
		"IncludedQueryRegex":  cache.IncludedQueryRegex,
	} {
		if raw == "" {
			continue
		}
		if _, ok := settings.ValidateRegex(raw); !ok {
			return newFieldError(cacheField(field), "正则表达式无效")
		}
	}

	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("Origin 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}
