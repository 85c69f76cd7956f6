// Package invalidation 把内容变更事件映射为定向删除或全站清空。
package invalidation

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sitecache/sitecache/internal/cache"
	"github.com/sitecache/sitecache/internal/events"
	"github.com/sitecache/sitecache/internal/logging"
	"github.com/sitecache/sitecache/internal/settings"
)

// SettingsSource 提供当前的设置快照。
type SettingsSource interface {
	Current() *settings.Snapshot
}

// Preferences 持久化每个操作者的清理偏好。
type Preferences interface {
	ClearChoice(actor string) (events.ClearChoice, error)
	SetClearChoice(actor string, choice events.ClearChoice) error
}

// PermalinkFunc 根据内容类型推导规范 URL，无法推导时返回空串。
type PermalinkFunc func(contentType, slug string, id int64) string

// Policy 订阅事件并执行失效。
type Policy struct {
	store     cache.Store
	resolver  *cache.Resolver
	settings  SettingsSource
	prefs     Preferences
	permalink PermalinkFunc
	size      *SizeEstimate
	logger    *logrus.Logger
}

// New 构造失效策略；prefs 与 permalink 可为 nil。
func New(store cache.Store, resolver *cache.Resolver, source SettingsSource, prefs Preferences, permalink PermalinkFunc, logger *logrus.Logger) *Policy {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Policy{
		store:     store,
		resolver:  resolver,
		settings:  source,
		prefs:     prefs,
		permalink: permalink,
		size:      NewSizeEstimate(store, resolver.PagesRoot()),
		logger:    logger,
	}
}

// Register 订阅所有会触发失效的事件。
func (p *Policy) Register(d *events.Dispatcher) {
	d.Subscribe(events.ContentPublished, p.onPublished)
	d.Subscribe(events.ThemeSwitched, p.onFlush)
	d.Subscribe(events.PluginUpgraded, p.onUpgrade)
	d.Subscribe(events.StockChanged, p.onFlush)
	d.Subscribe(events.CacheCleared, p.onFlush)
	d.Subscribe(events.SettingsChanged, p.onFlush)
	d.Subscribe(events.CacheURLCleared, p.onClearURL)
}

// Size 返回整页缓存的记忆体积。
func (p *Policy) Size(ctx context.Context) (int64, error) {
	return p.size.Get(ctx)
}

// ClearAll 清空整页缓存并丢弃体积估算。
func (p *Policy) ClearAll(ctx context.Context) error {
	err := p.store.DeleteAll(ctx)
	p.size.Invalidate()
	return err
}

// ClearURL 删除单个 URL 对应的条目。
func (p *Policy) ClearURL(ctx context.Context, rawURL string) error {
	if rawURL == "" {
		return errors.New("url required")
	}
	entry, err := p.resolver.Resolve(rawURL)
	if err != nil {
		return err
	}
	if err := p.store.Delete(ctx, entry); err != nil {
		return err
	}
	p.size.Invalidate()
	return nil
}

func (p *Policy) onFlush(ctx context.Context, evt events.Event) error {
	p.logger.WithFields(logging.EventFields(string(evt.Kind), evt.Actor, 0)).Info("cache_flush")
	return p.ClearAll(ctx)
}

func (p *Policy) onUpgrade(ctx context.Context, evt events.Event) error {
	if !p.snapshot().Settings.ClearOnUpgrade {
		return nil
	}
	return p.onFlush(ctx, evt)
}

func (p *Policy) onClearURL(ctx context.Context, evt events.Event) error {
	p.logger.WithFields(logging.EventFields(string(evt.Kind), evt.Actor, 0)).WithField("url", evt.URL).Info("cache_clear_url")
	return p.ClearURL(ctx, evt.URL)
}

func (p *Policy) onPublished(ctx context.Context, evt events.Event) error {
	content := evt.Content
	if content == nil || !content.Publishable() {
		return nil
	}

	choice, err := p.choice(evt)
	if err != nil {
		return err
	}
	fields := logging.EventFields(string(evt.Kind), evt.Actor, content.ID)
	if choice == events.ClearAll {
		p.logger.WithFields(fields).WithField("choice", string(choice)).Info("cache_flush")
		return p.ClearAll(ctx)
	}

	target := content.Permalink
	if target == "" && p.permalink != nil {
		target = p.permalink(content.Type, content.Slug, content.ID)
	}
	if target == "" {
		return fmt.Errorf("no permalink for content %d", content.ID)
	}
	p.logger.WithFields(fields).WithField("url", target).Info("cache_clear_url")

	var errs []error
	if err := p.ClearURL(ctx, target); err != nil {
		errs = append(errs, err)
	}
	if p.snapshot().Settings.ClearHomeOnPublish {
		if err := p.ClearURL(ctx, "/"); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// choice 优先使用事件携带的选择并记为该操作者的新偏好。
func (p *Policy) choice(evt events.Event) (events.ClearChoice, error) {
	if evt.Clear != events.ClearUnset {
		if p.prefs != nil && evt.Actor != "" {
			if err := p.prefs.SetClearChoice(evt.Actor, evt.Clear); err != nil {
				return events.ClearUnset, err
			}
		}
		return evt.Clear, nil
	}
	if p.prefs == nil || evt.Actor == "" {
		return events.ClearSpecific, nil
	}
	return p.prefs.ClearChoice(evt.Actor)
}

func (p *Policy) snapshot() *settings.Snapshot {
	if p.settings != nil {
		if snap := p.settings.Current(); snap != nil {
			return snap
		}
	}
	return settings.Compile(settings.CacheSettings{})
}
