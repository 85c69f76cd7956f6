package routes

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/sitecache/sitecache/internal/cache"
	"github.com/sitecache/sitecache/internal/events"
	"github.com/sitecache/sitecache/internal/invalidation"
	"github.com/sitecache/sitecache/internal/server"
	"github.com/sitecache/sitecache/internal/settings"
)

const (
	headerToken = "X-Sitecache-Token"
	headerActor = "X-Actor"
	headerNonce = "X-Sitecache-Nonce"

	contextKeyActor = "_sitecache_actor"
)

// Nonce actions accepted by the state-changing routes.
const (
	ActionClear       = "clear"
	ActionClearURL    = "clearurl"
	ActionSettings    = "settings"
	ActionPreferences = "preferences"
)

// Warnings reported by /-/status.
const (
	WarningMissingPermalink = "missing_permalink_config"
	WarningNotWritable      = "cache_dir_not_writable"
)

// AdminDeps 汇总管理接口依赖的组件。
type AdminDeps struct {
	Token             string
	Nonces            *server.NonceIssuer
	Dispatcher        *events.Dispatcher
	Settings          *settings.Store
	Invalidation      *invalidation.Policy
	Store             cache.Store
	PermalinksEnabled bool
	Logger            *logrus.Logger
}

// RegisterAdminRoutes 在 /-/ 前缀下注册缓存管理接口。
func RegisterAdminRoutes(app *fiber.App, deps AdminDeps) error {
	if app == nil {
		return errors.New("app is required")
	}
	if deps.Token == "" {
		return errors.New("admin token is required")
	}
	if deps.Nonces == nil || deps.Dispatcher == nil || deps.Settings == nil || deps.Invalidation == nil || deps.Store == nil {
		return errors.New("admin dependencies are incomplete")
	}
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	a := &admin{deps: deps}

	group := app.Group("/-", a.authenticate)
	group.Get("/nonce", a.nonce)
	group.Get("/status", a.status)
	group.Post("/cache/clear", a.requireNonce(ActionClear), a.clearAll)
	group.Post("/cache/clear-url", a.requireNonce(ActionClearURL), a.clearURL)
	group.Get("/settings", a.getSettings)
	group.Put("/settings", a.requireNonce(ActionSettings), a.putSettings)
	group.Get("/preferences", a.getPreferences)
	group.Put("/preferences", a.requireNonce(ActionPreferences), a.putPreferences)
	group.Post("/events", a.postEvent)
	return nil
}

type admin struct {
	deps AdminDeps
}

// authenticate 校验管理令牌并记录操作者身份。
func (a *admin) authenticate(c fiber.Ctx) error {
	token := c.Get(headerToken)
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.deps.Token)) != 1 {
		return writeError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	actor := strings.TrimSpace(c.Get(headerActor))
	if actor == "" {
		return writeError(c, fiber.StatusBadRequest, "actor_required")
	}
	c.Locals(contextKeyActor, actor)
	return c.Next()
}

func (a *admin) requireNonce(action string) fiber.Handler {
	return func(c fiber.Ctx) error {
		nonce := c.Get(headerNonce)
		if nonce == "" {
			nonce = c.Query("_nonce")
		}
		if !a.deps.Nonces.Verify(action, actorOf(c), nonce) {
			return writeError(c, fiber.StatusForbidden, "invalid_nonce")
		}
		return c.Next()
	}
}

func (a *admin) nonce(c fiber.Ctx) error {
	action := strings.TrimSpace(c.Query("action"))
	switch action {
	case ActionClear, ActionClearURL, ActionSettings, ActionPreferences:
	default:
		return writeError(c, fiber.StatusBadRequest, "unknown_action")
	}
	return c.JSON(fiber.Map{
		"action": action,
		"nonce":  a.deps.Nonces.Issue(action, actorOf(c)),
	})
}

func (a *admin) status(c fiber.Ctx) error {
	size, err := a.deps.Invalidation.Size(c.Context())
	if err != nil {
		a.logFailure(c, "status", err)
		return writeError(c, fiber.StatusInternalServerError, "size_failed")
	}
	warnings := []string{}
	if !a.deps.PermalinksEnabled {
		warnings = append(warnings, WarningMissingPermalink)
	}
	if err := a.deps.Store.Writable(); err != nil {
		warnings = append(warnings, WarningNotWritable)
	}
	actors, err := a.deps.Settings.Actors()
	if err != nil {
		a.logFailure(c, "status", err)
		return writeError(c, fiber.StatusInternalServerError, "preferences_failed")
	}
	if actors == nil {
		actors = []string{}
	}
	subscribers := make(map[string]int)
	for _, kind := range events.Kinds() {
		subscribers[string(kind)] = a.deps.Dispatcher.Subscribers(kind)
	}
	return c.JSON(fiber.Map{
		"size_bytes":        size,
		"settings":          a.deps.Settings.Current().Settings,
		"warnings":          warnings,
		"preference_actors": actors,
		"subscribers":       subscribers,
	})
}

func (a *admin) clearAll(c fiber.Ctx) error {
	evt := events.Event{Kind: events.CacheCleared, Actor: actorOf(c)}
	if err := a.deps.Dispatcher.Dispatch(c.Context(), evt); err != nil {
		a.logFailure(c, "clear", err)
		return writeError(c, fiber.StatusInternalServerError, "clear_failed")
	}
	return c.JSON(fiber.Map{"cleared": "all"})
}

func (a *admin) clearURL(c fiber.Ctx) error {
	target := strings.TrimSpace(c.Query("url"))
	if target == "" {
		return writeError(c, fiber.StatusBadRequest, "url_required")
	}
	evt := events.Event{Kind: events.CacheURLCleared, Actor: actorOf(c), URL: target}
	if err := a.deps.Dispatcher.Dispatch(c.Context(), evt); err != nil {
		if errors.Is(err, cache.ErrInvalidPath) {
			return writeError(c, fiber.StatusBadRequest, "invalid_path")
		}
		a.logFailure(c, "clear_url", err)
		return writeError(c, fiber.StatusInternalServerError, "clear_failed")
	}
	return c.JSON(fiber.Map{"cleared": cache.CanonicalPath(target)})
}

func (a *admin) getSettings(c fiber.Ctx) error {
	return c.JSON(a.deps.Settings.Current().Settings)
}

func (a *admin) putSettings(c fiber.Ctx) error {
	var next settings.CacheSettings
	if err := json.Unmarshal(c.Body(), &next); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_body")
	}
	snap, warnings, err := a.deps.Settings.Save(c.Context(), next, actorOf(c))
	if err != nil && snap == nil {
		a.logFailure(c, "settings", err)
		return writeError(c, fiber.StatusInternalServerError, "settings_save_failed")
	}
	if err != nil {
		// 已保存，但清空缓存失败。
		a.logFailure(c, "settings_flush", err)
	}
	if warnings == nil {
		warnings = []string{}
	}
	return c.JSON(fiber.Map{
		"settings": snap.Settings,
		"warnings": warnings,
	})
}

type preferencePayload struct {
	Clear string `json:"clear"`
}

func (a *admin) getPreferences(c fiber.Ctx) error {
	choice, err := a.deps.Settings.ClearChoice(actorOf(c))
	if err != nil {
		a.logFailure(c, "preferences", err)
		return writeError(c, fiber.StatusInternalServerError, "preferences_failed")
	}
	return c.JSON(preferencePayload{Clear: string(choice)})
}

func (a *admin) putPreferences(c fiber.Ctx) error {
	var payload preferencePayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_body")
	}
	choice, err := events.ParseClearChoice(payload.Clear)
	if err != nil || choice == events.ClearUnset {
		return writeError(c, fiber.StatusBadRequest, "invalid_choice")
	}
	if err := a.deps.Settings.SetClearChoice(actorOf(c), choice); err != nil {
		a.logFailure(c, "preferences", err)
		return writeError(c, fiber.StatusInternalServerError, "preferences_failed")
	}
	return c.JSON(preferencePayload{Clear: string(choice)})
}

// eventPayload 是 ContentSource 推送事件的线上格式。
type eventPayload struct {
	Kind    string          `json:"kind"`
	Actor   string          `json:"actor"`
	Content *events.Content `json:"content"`
	Clear   string          `json:"clear"`
	URL     string          `json:"url"`
}

func (a *admin) postEvent(c fiber.Ctx) error {
	var payload eventPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_body")
	}
	kind, err := events.ParseKind(payload.Kind)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "unknown_kind")
	}
	choice, err := events.ParseClearChoice(payload.Clear)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_choice")
	}
	actor := strings.TrimSpace(payload.Actor)
	if actor == "" {
		actor = actorOf(c)
	}

	evt := events.Event{Kind: kind, Actor: actor, Content: payload.Content, Clear: choice, URL: payload.URL}
	if err := a.deps.Dispatcher.Dispatch(c.Context(), evt); err != nil {
		a.logFailure(c, "event", err)
		return writeError(c, fiber.StatusInternalServerError, "event_failed")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"kind": kind})
}

func (a *admin) logFailure(c fiber.Ctx, action string, err error) {
	a.deps.Logger.WithFields(logrus.Fields{
		"action":     "admin_" + action,
		"actor":      actorOf(c),
		"request_id": server.RequestID(c),
	}).WithError(err).Error("admin_failed")
}

func actorOf(c fiber.Ctx) string {
	if value, ok := c.Locals(contextKeyActor).(string); ok {
		return value
	}
	return ""
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}
