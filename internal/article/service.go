package article

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sitecache/sitecache/internal/cache"
	"github.com/sitecache/sitecache/internal/events"
	"github.com/sitecache/sitecache/internal/logging"
	"github.com/sitecache/sitecache/internal/settings"
)

// SettingsSource 提供当前设置快照。
type SettingsSource interface {
	Current() *settings.Snapshot
}

// Service 响应内容保存与删除事件，维护 article.html。
type Service struct {
	store    cache.Store
	resolver *cache.Resolver
	renderer Renderer
	settings SettingsSource
	now      func() time.Time
	logger   *logrus.Logger
}

// Option 定制 Service。
type Option func(*Service)

// WithClock 替换时间戳使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRenderer 替换默认渲染器。
func WithRenderer(r Renderer) Option {
	return func(s *Service) { s.renderer = r }
}

// NewService 构造片段服务，默认使用不含短代码的 DefaultRenderer。
func NewService(store cache.Store, resolver *cache.Resolver, source SettingsSource, logger *logrus.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Service{
		store:    store,
		resolver: resolver,
		renderer: DefaultRenderer{Shortcodes: NewRegistry()},
		settings: source,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register 订阅 content.saved 与 content.trashed。
func (s *Service) Register(d *events.Dispatcher) {
	d.Subscribe(events.ContentSaved, s.onSaved)
	d.Subscribe(events.ContentTrashed, s.onTrashed)
}

// Refresh 渲染并写入一条内容的片段。不支持的内容类型直接跳过。
func (s *Service) Refresh(ctx context.Context, rec Record) error {
	dir, err := s.resolver.ResolveArticle(rec.Type, rec.Slug)
	if errors.Is(err, cache.ErrUnsupportedContentType) {
		return nil
	}
	if err != nil {
		return err
	}
	body, err := s.renderer.Render(ctx, rec)
	if err != nil {
		return fmt.Errorf("render content %d: %w", rec.ID, err)
	}
	return s.store.StoreArticle(ctx, dir, Wrap(rec, body, s.now()))
}

// Purge 删除一条内容的片段。
func (s *Service) Purge(ctx context.Context, rec Record) error {
	dir, err := s.resolver.ResolveArticle(rec.Type, rec.Slug)
	if errors.Is(err, cache.ErrUnsupportedContentType) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.store.DeleteArticle(ctx, dir)
}

func (s *Service) onSaved(ctx context.Context, evt events.Event) error {
	content := evt.Content
	if content == nil || content.Revision || content.Autosave {
		return nil
	}
	s.logger.WithFields(logging.EventFields(string(evt.Kind), evt.Actor, content.ID)).Debug("article_refresh")
	return s.Refresh(ctx, RecordFrom(*content))
}

func (s *Service) onTrashed(ctx context.Context, evt events.Event) error {
	content := evt.Content
	if content == nil || !s.purgeOnTrash() {
		return nil
	}
	s.logger.WithFields(logging.EventFields(string(evt.Kind), evt.Actor, content.ID)).Info("article_purge")
	return s.Purge(ctx, RecordFrom(*content))
}

func (s *Service) purgeOnTrash() bool {
	if s.settings == nil {
		return false
	}
	snap := s.settings.Current()
	return snap != nil && snap.Settings.ArticlePurgeOnTrash
}
