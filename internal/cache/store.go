package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"
)

// Store 负责整页缓存与文章片段缓存的磁盘读写。磁盘布局：
//
//	<pages root>/<url path>/index.html          # plain
//	<pages root>/<url path>/index.html.gz       # gzip
//	<pages root>/<url path>/index-webp.html     # webp
//	<pages root>/<url path>/index-webp.html.gz  # webp + gzip
//	<articles root>/<type prefix>/<slug>/article.html
//
// 条目存在当且仅当 plain 变体可读；其 ModTime 即条目的创建时间。
type Store interface {
	// Exists 在 plain 变体可读时返回 true。
	Exists(entry Entry) bool
	// Expired 在 ttl 为 0 时恒为 false，否则比较 mtime+ttl 与当前时间。
	Expired(entry Entry, ttl time.Duration) bool
	// ModTime 返回 plain 变体的修改时间。
	ModTime(entry Entry) (time.Time, error)
	// Open 打开指定变体，不存在时返回 ErrNotFound。
	Open(entry Entry, variant Variant) (*ReadResult, error)
	// Store 通过临时文件 + rename 写入全部变体，最后写 plain。
	Store(ctx context.Context, entry Entry, content []byte, opts StoreOptions) error
	// Delete 递归删除条目目录；目标不存在不视为错误。
	Delete(ctx context.Context, entry Entry) error
	// DeleteAll 清空整页缓存根目录。
	DeleteAll(ctx context.Context) error
	// Size 返回目录下所有文件的字节数之和，目录不存在时返回 0。
	Size(dir string) (int64, error)
	// StoreArticle 写入文章片段。
	StoreArticle(ctx context.Context, dir string, content []byte) error
	// DeleteArticle 删除文章片段文件。
	DeleteArticle(ctx context.Context, dir string) error
	// ArticleExists 在文章片段文件存在时返回 true。
	ArticleExists(dir string) bool
	// Writable 检查缓存根目录是否可写。
	Writable() error
}

// Option 定制 Store 行为。
type Option func(*fileStore)

// WithClock 替换过期判断使用的时钟，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(s *fileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore 以解析器的两个根目录构建磁盘缓存，整站复用一份实例。
func NewStore(resolver *Resolver, opts ...Option) (Store, error) {
	if resolver == nil {
		return nil, errors.New("resolver required")
	}
	for _, dir := range []string{resolver.PagesRoot(), resolver.ArticlesRoot()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage path: %w", err)
		}
	}

	s := &fileStore{
		pagesRoot:    resolver.PagesRoot(),
		articlesRoot: resolver.ArticlesRoot(),
		locks:        make(map[string]*entryLock),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// fileStore 通过 entryLock 避免同一目录在进程内并发写入；跨进程时以最后一次 rename 为准。
type fileStore struct {
	pagesRoot    string
	articlesRoot string
	now          func() time.Time

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Exists(entry Entry) bool {
	f, err := os.Open(entry.File(VariantPlain))
	if err != nil {
		return false
	}
	defer f.Close()
	info, err := f.Stat()
	return err == nil && info.Mode().IsRegular()
}

func (s *fileStore) Expired(entry Entry, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	modTime, err := s.ModTime(entry)
	if err != nil {
		return true
	}
	return !s.now().Before(modTime.Add(ttl))
}

func (s *fileStore) ModTime(entry Entry) (time.Time, error) {
	info, err := os.Stat(entry.File(VariantPlain))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (s *fileStore) Open(entry Entry, variant Variant) (*ReadResult, error) {
	f, err := os.Open(entry.File(variant))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return &ReadResult{
		Entry:     entry,
		Variant:   variant,
		SizeBytes: info.Size(),
		ModTime:   info.ModTime(),
		Reader:    f,
	}, nil
}

func (s *fileStore) Store(ctx context.Context, entry Entry, content []byte, opts StoreOptions) error {
	if len(content) == 0 {
		return ErrEmptyContent
	}
	if !s.within(s.pagesRoot, entry.Dir) {
		return ErrInvalidPath
	}

	unlock := s.lockEntry(entry.Dir)
	defer unlock()

	payloads := map[Variant][]byte{VariantPlain: content}
	if len(opts.WebP) > 0 {
		payloads[VariantWebP] = opts.WebP
	}
	if opts.Gzip {
		payloads[VariantGzip] = nil
		if len(opts.WebP) > 0 {
			payloads[VariantWebPGzip] = nil
		}
	}

	modTime := opts.ModTime
	if modTime.IsZero() {
		modTime = s.now()
	}

	written, err := s.writeVariants(ctx, entry.Dir, payloads, modTime)
	if err != nil {
		return err
	}

	// 旧配置遗留的变体不能继续被投递。
	for _, variant := range Variants {
		if _, ok := written[variant]; ok {
			continue
		}
		if err := os.Remove(entry.File(variant)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove stale %s: %v", ErrWriteFailed, variant, err)
		}
	}
	return nil
}

// writeVariants 并发生成各变体的临时文件，全部成功后按 Variants 顺序 rename。
func (s *fileStore) writeVariants(ctx context.Context, dir string, payloads map[Variant][]byte, modTime time.Time) (map[Variant]struct{}, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDirectoryCreateFailed, err)
	}
	perm := filePerm(dir)

	var (
		mu    sync.Mutex
		temps = make(map[Variant]string, len(payloads))
	)
	g, gctx := errgroup.WithContext(ctx)
	for variant, body := range payloads {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data := body
			if variant.Gzipped() {
				source := payloads[VariantPlain]
				if variant == VariantWebPGzip {
					source = payloads[VariantWebP]
				}
				compressed, err := gzipBytes(source)
				if err != nil {
					return err
				}
				data = compressed
			}
			tmp, err := writeTemp(dir, data, perm, modTime)
			if err != nil {
				return err
			}
			mu.Lock()
			temps[variant] = tmp
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		removeAll(temps)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	written := make(map[Variant]struct{}, len(temps))
	for _, variant := range Variants {
		tmp, ok := temps[variant]
		if !ok {
			continue
		}
		if err := os.Rename(tmp, filepath.Join(dir, variant.FileName())); err != nil {
			removeAll(temps)
			return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		delete(temps, variant)
		written[variant] = struct{}{}
	}
	return written, nil
}

func (s *fileStore) Delete(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Clean(entry.Dir)
	if dir == s.pagesRoot {
		// 首页条目位于根目录，只删除其变体，避免波及整站缓存。
		unlock := s.lockEntry(entry.Dir)
		defer unlock()
		for _, variant := range Variants {
			if err := os.Remove(entry.File(variant)); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		return nil
	}
	if !s.within(s.pagesRoot, entry.Dir) {
		return ErrInvalidPath
	}

	unlock := s.lockEntry(entry.Dir)
	defer unlock()
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) DeleteAll(ctx context.Context) error {
	items, err := os.ReadDir(s.pagesRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var errs []error
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.RemoveAll(filepath.Join(s.pagesRoot, item.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *fileStore) Size(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return total, err
}

func (s *fileStore) StoreArticle(ctx context.Context, dir string, content []byte) error {
	if len(content) == 0 {
		return ErrEmptyContent
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.within(s.articlesRoot, dir) {
		return ErrInvalidPath
	}

	unlock := s.lockEntry(dir)
	defer unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrDirectoryCreateFailed, err)
	}
	tmp, err := writeTemp(dir, content, filePerm(dir), s.now())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, FileArticle)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

func (s *fileStore) DeleteArticle(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.within(s.articlesRoot, dir) {
		return ErrInvalidPath
	}
	unlock := s.lockEntry(dir)
	defer unlock()

	if err := os.Remove(filepath.Join(dir, FileArticle)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if filepath.Clean(dir) != s.articlesRoot {
		// 目录仍有其它内容时 Remove 会失败，忽略即可。
		_ = os.Remove(filepath.Clean(dir))
	}
	return nil
}

func (s *fileStore) ArticleExists(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, FileArticle))
	return err == nil && info.Mode().IsRegular()
}

func (s *fileStore) Writable() error {
	for _, root := range []string{s.pagesRoot, s.articlesRoot} {
		probe, err := os.CreateTemp(root, ".probe-*")
		if err != nil {
			return fmt.Errorf("%s not writable: %w", root, err)
		}
		name := probe.Name()
		probe.Close()
		os.Remove(name)
	}
	return nil
}

func (s *fileStore) within(root, dir string) bool {
	clean := filepath.Clean(dir)
	return clean == root || strings.HasPrefix(clean, root+string(os.PathSeparator))
}

func (s *fileStore) lockEntry(key string) func() {
	key = filepath.Clean(key)
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// filePerm 继承父目录权限并去掉执行位。
func filePerm(dir string) os.FileMode {
	info, err := os.Stat(dir)
	if err != nil {
		return 0o644
	}
	return info.Mode().Perm() & 0o666
}

func writeTemp(dir string, data []byte, perm os.FileMode, modTime time.Time) (string, error) {
	tmp, err := os.CreateTemp(dir, ".cache-*")
	if err != nil {
		return "", err
	}
	name := tmp.Name()
	_, err = tmp.Write(data)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(name, perm)
	}
	if err == nil {
		err = os.Chtimes(name, modTime, modTime)
	}
	if err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func removeAll(temps map[Variant]string) {
	for _, name := range temps {
		os.Remove(name)
	}
}
