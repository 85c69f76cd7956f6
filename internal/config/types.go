package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sitecache/sitecache/internal/settings"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if seconds, err := time.ParseDuration(raw); err == nil {
		*d = Duration(seconds)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听端口、日志、缓存目录与源站。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	Origin          string   `mapstructure:"Origin"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	AdminToken      string   `mapstructure:"AdminToken"`
	NonceSecret     string   `mapstructure:"NonceSecret"`
	// PermalinkStructure 为空表示站点未启用固定链接，此时缓存整体停用。
	PermalinkStructure string `mapstructure:"PermalinkStructure"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	// Permalinks 按内容类型覆盖链接模板，例如 post = "/news/%slug%/"。
	Permalinks map[string]string `mapstructure:"Permalinks"`
	// Cache 是首次启动时写入设置存储的初始缓存策略。
	Cache settings.CacheSettings `mapstructure:"Cache"`
}

// PagesRoot 返回整页缓存根目录。
func (g GlobalConfig) PagesRoot() string {
	return strings.TrimRight(g.StoragePath, "/\\") + "/pages"
}

// ArticlesRoot 返回文章片段缓存根目录，与整页缓存互不影响。
func (g GlobalConfig) ArticlesRoot() string {
	return strings.TrimRight(g.StoragePath, "/\\") + "/articles"
}

// SettingsPath 返回设置存储（LevelDB）所在目录。
func (g GlobalConfig) SettingsPath() string {
	return strings.TrimRight(g.StoragePath, "/\\") + "/settings"
}

// PermalinksEnabled 表示站点是否配置了固定链接结构。
func (g GlobalConfig) PermalinksEnabled() bool {
	return strings.TrimSpace(g.PermalinkStructure) != ""
}

// PermalinkFor 根据内容类型选择链接模板并替换 %slug%/%id%/%type% 占位符。
func (c *Config) PermalinkFor(contentType, slug string, id int64) string {
	tmpl := c.Global.PermalinkStructure
	if c.Permalinks != nil {
		if override, ok := c.Permalinks[strings.ToLower(contentType)]; ok && override != "" {
			tmpl = override
		}
	}
	if strings.TrimSpace(tmpl) == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"%slug%", slug,
		"%postname%", slug,
		"%id%", strconv.FormatInt(id, 10),
		"%type%", contentType,
	)
	return replacer.Replace(tmpl)
}
