package cache

import (
	"io"
	"path/filepath"
	"time"
)

// Variant 标识同一条目下的一个物理文件（压缩方式 × 图片格式）。
type Variant int

const (
	VariantPlain Variant = iota
	VariantGzip
	VariantWebP
	VariantWebPGzip
)

const (
	fileHTML     = "index.html"
	fileWebPHTML = "index-webp.html"
	gzipSuffix   = ".gz"
	// FileArticle 是文章片段缓存的文件名。
	FileArticle = "article.html"
)

// Variants 按写入顺序列出全部变体，plain 最后落盘。
var Variants = []Variant{VariantWebPGzip, VariantWebP, VariantGzip, VariantPlain}

// FileName 返回变体在条目目录中的文件名。
func (v Variant) FileName() string {
	switch v {
	case VariantGzip:
		return fileHTML + gzipSuffix
	case VariantWebP:
		return fileWebPHTML
	case VariantWebPGzip:
		return fileWebPHTML + gzipSuffix
	default:
		return fileHTML
	}
}

// Gzipped 表示变体内容是否为 gzip 压缩。
func (v Variant) Gzipped() bool {
	return v == VariantGzip || v == VariantWebPGzip
}

func (v Variant) String() string {
	switch v {
	case VariantGzip:
		return "gzip"
	case VariantWebP:
		return "webp"
	case VariantWebPGzip:
		return "webp+gzip"
	default:
		return "plain"
	}
}

// Entry 是由 URL 路径确定的缓存单元。Dir 始终以路径分隔符结尾。
type Entry struct {
	URLPath string `json:"url_path"`
	Dir     string `json:"dir"`
}

// File 返回指定变体的绝对路径。
func (e Entry) File(v Variant) string {
	return filepath.Join(e.Dir, v.FileName())
}

// StoreOptions 控制一次写入产出哪些变体。
type StoreOptions struct {
	// Gzip 为 true 时为每个未压缩变体生成 .gz 版本。
	Gzip bool
	// WebP 非空时写入 WebP 感知的 HTML 变体。
	WebP []byte
	// ModTime 为空时使用当前时间。
	ModTime time.Time
}

// ReadResult 组合变体信息与正文 Reader，便于投递层直接输出。
type ReadResult struct {
	Entry     Entry
	Variant   Variant
	SizeBytes int64
	ModTime   time.Time
	Reader    io.ReadSeekCloser
}
