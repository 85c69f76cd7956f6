// Package events decouples the cache core from the host application's event
// system. The content application reports mutations (publish, trash, theme
// switch, stock change, ...) through a Dispatcher; invalidation and the
// article tier subscribe to the kinds they care about.
package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind names a mutation reported by the content application or the admin API.
type Kind string

const (
	ContentSaved     Kind = "content.saved"
	ContentPublished Kind = "content.published"
	ContentTrashed   Kind = "content.trashed"
	ThemeSwitched    Kind = "theme.switched"
	PluginUpgraded   Kind = "plugin.upgraded"
	StockChanged     Kind = "stock.changed"
	SettingsChanged  Kind = "settings.changed"
	CacheCleared     Kind = "cache.clear"
	CacheURLCleared  Kind = "cache.clear_url"
)

var knownKinds = map[Kind]struct{}{
	ContentSaved:     {},
	ContentPublished: {},
	ContentTrashed:   {},
	ThemeSwitched:    {},
	PluginUpgraded:   {},
	StockChanged:     {},
	SettingsChanged:  {},
	CacheCleared:     {},
	CacheURLCleared:  {},
}

// Kinds lists every known kind in lexical order.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(knownKinds))
	for kind := range knownKinds {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// ParseKind normalizes a wire value and rejects unknown kinds.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownKinds[kind]; !ok {
		return "", fmt.Errorf("unknown event kind %q", raw)
	}
	return kind, nil
}

// ClearChoice is an actor's preference for how a publish invalidates the cache.
type ClearChoice string

const (
	ClearUnset    ClearChoice = ""
	ClearSpecific ClearChoice = "specific"
	ClearAll      ClearChoice = "all"
)

// ParseClearChoice accepts the wire names and the legacy 0/1 form.
func ParseClearChoice(raw string) (ClearChoice, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ClearUnset, nil
	case "specific", "0":
		return ClearSpecific, nil
	case "all", "completely", "1":
		return ClearAll, nil
	default:
		return ClearUnset, fmt.Errorf("unknown clear choice %q", raw)
	}
}

// Content is the mutated record as reported by the content application.
type Content struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Slug      string `json:"slug"`
	Status    string `json:"status"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Permalink string `json:"permalink,omitempty"`
	Revision  bool   `json:"revision,omitempty"`
	Autosave  bool   `json:"autosave,omitempty"`
}

// Publishable reports whether the status participates in page invalidation.
func (c Content) Publishable() bool {
	return c.Status == "publish" || c.Status == "future"
}

// Event is a single mutation notification.
type Event struct {
	Kind    Kind        `json:"kind"`
	Actor   string      `json:"actor,omitempty"`
	Content *Content    `json:"content,omitempty"`
	Clear   ClearChoice `json:"clear,omitempty"`
	URL     string      `json:"url,omitempty"`
}

// Handler reacts to an event.
type Handler func(ctx context.Context, evt Event) error

// Dispatcher fans events out to subscribers in registration order.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

// NewDispatcher returns an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[Kind][]Handler)}
}

// Subscribe registers handler for kind.
func (d *Dispatcher) Subscribe(kind Kind, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = append(d.handlers[kind], handler)
}

// Dispatch runs every handler subscribed to evt.Kind. All handlers run even
// when one fails; the failures are joined.
func (d *Dispatcher) Dispatch(ctx context.Context, evt Event) error {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers[evt.Kind]...)
	d.mu.RUnlock()

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, evt); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", evt.Kind, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribers returns how many handlers listen on kind.
func (d *Dispatcher) Subscribers(kind Kind) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[kind])
}
