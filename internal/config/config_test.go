package config

import (
	"testing"
	"time"

	"github.com/sitecache/sitecache/internal/settings"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("UpstreamTimeout 应该自动填充默认值")
	}
	if cfg.Global.StoragePath == "" {
		t.Fatalf("StoragePath 应该被保留")
	}
	if cfg.Global.NonceSecret != cfg.Global.AdminToken {
		t.Fatalf("未配置 NonceSecret 时应沿用 AdminToken")
	}
	if cfg.Cache.TTLHours != 12 || !cfg.Cache.Compress || !cfg.Cache.WebP {
		t.Fatalf("Cache 段解析错误: %+v", cfg.Cache)
	}
	if cfg.Cache.MinifyLevel != settings.MinifyHTML {
		t.Fatalf("MinifyLevel 解析错误: %d", cfg.Cache.MinifyLevel)
	}
}

func TestValidateRejectsMissingOrigin(t *testing.T) {
	cfgPath := testConfigPath(t, "missing.toml")

	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("缺少 Origin 的配置应返回错误")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestValidateCacheSection(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Config)
		shouldErr bool
	}{
		{"defaults ok", func(*Config) {}, false},
		{"negative ttl", func(c *Config) { c.Cache.TTLHours = -1 }, true},
		{"bad minify", func(c *Config) { c.Cache.MinifyLevel = 7 }, true},
		{"bad ids", func(c *Config) { c.Cache.ExcludedIDs = "1,abc" }, true},
		{"bad regex", func(c *Config) { c.Cache.ExcludedPathRegex = "/(/" }, true},
		{"slash regex ok", func(c *Config) { c.Cache.ExcludedCookieRegex = "/^session_/" }, false},
		{"relative permalink", func(c *Config) { c.Global.PermalinkStructure = "%slug%" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPermalinkForUsesTypeOverride(t *testing.T) {
	cfg := validConfig()
	cfg.Permalinks = map[string]string{"post": "/news/%slug%/"}

	if got := cfg.PermalinkFor("post", "hello", 3); got != "/news/hello/" {
		t.Fatalf("post 链接错误: %s", got)
	}
	if got := cfg.PermalinkFor("page", "about", 4); got != "/about/" {
		t.Fatalf("page 链接错误: %s", got)
	}

	cfg.Global.PermalinkStructure = ""
	if got := cfg.PermalinkFor("page", "about", 4); got != "" {
		t.Fatalf("未启用固定链接时应返回空串，得到 %s", got)
	}
}

func TestStorageRootsAreSeparated(t *testing.T) {
	g := GlobalConfig{StoragePath: "/var/cache/site/"}
	if g.PagesRoot() != "/var/cache/site/pages" {
		t.Fatalf("pages root 错误: %s", g.PagesRoot())
	}
	if g.ArticlesRoot() != "/var/cache/site/articles" {
		t.Fatalf("articles root 错误: %s", g.ArticlesRoot())
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:         8080,
			StoragePath:        "./data",
			Origin:             "http://127.0.0.1:9000",
			UpstreamTimeout:    Duration(time.Second),
			AdminToken:         "secret",
			PermalinkStructure: "/%slug%/",
		},
	}
}
