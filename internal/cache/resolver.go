package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const articlePostDir = "news"

// Resolver 将请求 URL 或内容 slug 映射到缓存目录，结果只取决于路径本身。
type Resolver struct {
	pagesRoot    string
	articlesRoot string
}

// NewResolver 构造解析器；两个根目录均需为绝对路径。
func NewResolver(pagesRoot, articlesRoot string) (*Resolver, error) {
	if pagesRoot == "" || articlesRoot == "" {
		return nil, errors.New("cache roots required")
	}
	pages, err := filepath.Abs(pagesRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve pages root: %w", err)
	}
	articles, err := filepath.Abs(articlesRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve articles root: %w", err)
	}
	return &Resolver{pagesRoot: pages, articlesRoot: articles}, nil
}

// PagesRoot 返回整页缓存根目录。
func (r *Resolver) PagesRoot() string { return r.pagesRoot }

// ArticlesRoot 返回文章片段缓存根目录。
func (r *Resolver) ArticlesRoot() string { return r.articlesRoot }

// Resolve 将请求 URI（可带 scheme/host/query/fragment）解析为缓存条目。
func (r *Resolver) Resolve(requestURI string) (Entry, error) {
	clean := CanonicalPath(requestURI)
	dir, err := r.dirFor(r.pagesRoot, clean)
	if err != nil {
		return Entry{}, err
	}
	return Entry{URLPath: clean, Dir: dir}, nil
}

// ResolveArticle 返回内容的文章片段目录：首页类 slug 落在根目录，
// post 位于 news/<slug>/，page 位于 <slug>/。
func (r *Resolver) ResolveArticle(contentType, slug string) (string, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" || slug == "." || slug == ".." || strings.ContainsAny(slug, `/\`) {
		return "", ErrInvalidPath
	}

	var rel string
	switch {
	case strings.Contains(slug, "home") || strings.Contains(slug, "front-page"):
		rel = "/"
	case contentType == "post":
		rel = "/" + articlePostDir + "/" + slug
	case contentType == "page":
		rel = "/" + slug
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedContentType, contentType)
	}
	return r.dirFor(r.articlesRoot, rel)
}

// CanonicalPath 去掉 scheme/host、查询串与片段，合并重复分隔符并清理 ./..。
// 入参必须是未解码的原始路径，百分号转义在这里只解码一次。
func CanonicalPath(requestURI string) string {
	raw := strings.TrimSpace(requestURI)
	if strings.Contains(raw, "://") {
		if parsed, err := url.Parse(raw); err == nil {
			raw = parsed.Path
		}
	} else {
		if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
			raw = raw[:idx]
		}
		if unescaped, err := url.PathUnescape(raw); err == nil {
			raw = unescaped
		}
	}
	raw = strings.ReplaceAll(raw, `\`, "/")
	for strings.Contains(raw, "//") {
		raw = strings.ReplaceAll(raw, "//", "/")
	}
	return path.Clean("/" + raw)
}

func (r *Resolver) dirFor(root, clean string) (string, error) {
	rel := strings.TrimPrefix(clean, "/")
	dir := root
	if rel != "" {
		dir = filepath.Join(root, filepath.FromSlash(rel))
	}
	if dir != root && !strings.HasPrefix(dir, root+string(os.PathSeparator)) {
		return "", ErrInvalidPath
	}
	if err := rejectFileAliases(root, rel); err != nil {
		return "", err
	}
	return dir + string(os.PathSeparator), nil
}

// rejectFileAliases 自根目录逐级检查，任何已存在的非目录组件都视为路径混淆。
func rejectFileAliases(root, rel string) error {
	if rel == "" {
		return nil
	}
	current := root
	for _, part := range strings.Split(rel, "/") {
		current = filepath.Join(current, part)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if !info.IsDir() {
			return ErrInvalidPath
		}
	}
	return nil
}
