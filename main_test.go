package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("SITECACHE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsDefaultPath(t *testing.T) {
	t.Setenv("SITECACHE_CONFIG", "")
	opts, err := parseCLIFlags(nil)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "config.toml" {
		t.Fatalf("默认配置路径应为 config.toml，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsRejectsConflictingCommands(t *testing.T) {
	if _, err := parseCLIFlags([]string{"--flush", "--export-settings"}); err == nil {
		t.Fatalf("--flush 与 --export-settings 同时使用应报错")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "加载配置失败") {
		t.Fatalf("stderr 应包含加载失败提示，得到 %q", stdErrBuffer().String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "sitecache") {
		t.Fatalf("version 输出应包含 sitecache 标识")
	}
}

func TestRunFlushClearsPages(t *testing.T) {
	storage := t.TempDir()
	configPath := writeSiteConfig(t, storage, "")

	page := filepath.Join(storage, "pages", "about", "index.html")
	if err := os.MkdirAll(filepath.Dir(page), 0o755); err != nil {
		t.Fatalf("创建缓存目录失败: %v", err)
	}
	if err := os.WriteFile(page, []byte("<p>about</p>"), 0o644); err != nil {
		t.Fatalf("写入缓存文件失败: %v", err)
	}

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, flush: true})
	if code != 0 {
		t.Fatalf("flush 应成功退出，得到 %d: %s", code, stdErrBuffer().String())
	}
	if _, err := os.Stat(page); !os.IsNotExist(err) {
		t.Fatalf("flush 后缓存文件应被删除, err=%v", err)
	}
	if !strings.Contains(stdOutBuffer().String(), "cache flushed") {
		t.Fatalf("flush 输出不符合预期: %q", stdOutBuffer().String())
	}
}

func TestRunExportSettings(t *testing.T) {
	storage := t.TempDir()
	configPath := writeSiteConfig(t, storage, `
[Cache]
TTLHours = 6
IncludedQueryRegex = "^utm_"
Compress = true
`)

	useBufferWriters(t)
	code := run(cliOptions{configPath: configPath, exportSettings: true})
	if code != 0 {
		t.Fatalf("export 应成功退出，得到 %d: %s", code, stdErrBuffer().String())
	}
	out := stdOutBuffer().String()
	if !strings.Contains(out, "ttl_hours: 6") {
		t.Fatalf("导出结果应包含 ttl_hours: 6，得到 %q", out)
	}
	if !strings.Contains(out, "compress: true") {
		t.Fatalf("导出结果应包含 compress: true，得到 %q", out)
	}
}

func writeSiteConfig(t *testing.T, storage, extra string) string {
	t.Helper()
	return writeConfigFile(t, fmt.Sprintf(`
LogLevel = "error"
StoragePath = "%s"
Origin = "http://127.0.0.1:9000"
AdminToken = "secret"
PermalinkStructure = "/%%slug%%/"
%s
`, storage, extra))
}
