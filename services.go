package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/sitecache/sitecache/internal/article"
	"github.com/sitecache/sitecache/internal/bypass"
	"github.com/sitecache/sitecache/internal/cache"
	"github.com/sitecache/sitecache/internal/config"
	"github.com/sitecache/sitecache/internal/events"
	"github.com/sitecache/sitecache/internal/invalidation"
	"github.com/sitecache/sitecache/internal/settings"
)

// services 持有进程内共享的缓存组件，HTTP 服务与一次性 CLI 命令共用。
type services struct {
	resolver     *cache.Resolver
	store        cache.Store
	dispatcher   *events.Dispatcher
	settings     *settings.Store
	bypass       *bypass.Policy
	invalidation *invalidation.Policy
	articles     *article.Service
}

func openServices(cfg *config.Config, logger *logrus.Logger) (*services, error) {
	resolver, err := cache.NewResolver(cfg.Global.PagesRoot(), cfg.Global.ArticlesRoot())
	if err != nil {
		return nil, err
	}
	store, err := cache.NewStore(resolver)
	if err != nil {
		return nil, err
	}

	dispatcher := events.NewDispatcher()
	settingsStore, err := settings.Open(cfg.Global.SettingsPath(), cfg.Cache, dispatcher)
	if err != nil {
		return nil, fmt.Errorf("打开设置存储失败: %w", err)
	}

	policy := invalidation.New(store, resolver, settingsStore, settingsStore, cfg.PermalinkFor, logger)
	policy.Register(dispatcher)

	articles := article.NewService(store, resolver, settingsStore, logger)
	articles.Register(dispatcher)

	return &services{
		resolver:     resolver,
		store:        store,
		dispatcher:   dispatcher,
		settings:     settingsStore,
		bypass:       bypass.NewPolicy(),
		invalidation: policy,
		articles:     articles,
	}, nil
}

func (s *services) Close() error {
	if s == nil || s.settings == nil {
		return errors.New("services not initialised")
	}
	return s.settings.Close()
}
