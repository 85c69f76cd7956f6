package article

import (
	"regexp"
	"strings"
	"sync"
)

// Shortcode 渲染一个短代码；content 为成对标签之间的文本，自闭合时为空。
type Shortcode func(attrs map[string]string, content string) string

var (
	shortcodeOpen = regexp.MustCompile(`\[([A-Za-z][\w-]*)((?:\s[^\]]*)?)\]`)
	shortcodeAttr = regexp.MustCompile(`([\w-]+)\s*=\s*(?:"([^"]*)"|'([^']*)'|([^\s"']+))`)
)

// Registry 保存已注册的短代码，未注册的标签按原文输出。
type Registry struct {
	mu    sync.RWMutex
	codes map[string]Shortcode
}

// NewRegistry 返回空的短代码注册表。
func NewRegistry() *Registry {
	return &Registry{codes: make(map[string]Shortcode)}
}

// Register 注册或覆盖名为 name 的短代码。
func (r *Registry) Register(name string, fn Shortcode) {
	if name == "" || fn == nil {
		return
	}
	r.mu.Lock()
	r.codes[name] = fn
	r.mu.Unlock()
}

func (r *Registry) lookup(name string) (Shortcode, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.codes[name]
	return fn, ok
}

// Expand 展开文本中所有已注册的短代码，不做嵌套展开。
func (r *Registry) Expand(text string) string {
	var b strings.Builder
	for {
		loc := shortcodeOpen.FindStringSubmatchIndex(text)
		if loc == nil {
			b.WriteString(text)
			return b.String()
		}
		name := text[loc[2]:loc[3]]
		fn, ok := r.lookup(name)
		if !ok {
			b.WriteString(text[:loc[1]])
			text = text[loc[1]:]
			continue
		}

		b.WriteString(text[:loc[0]])
		attrs := parseAttrs(text[loc[4]:loc[5]])
		rest := text[loc[1]:]
		content := ""
		closing := "[/" + name + "]"
		if idx := strings.Index(rest, closing); idx >= 0 {
			content = rest[:idx]
			rest = rest[idx+len(closing):]
		}
		b.WriteString(fn(attrs, content))
		text = rest
	}
}

func parseAttrs(raw string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range shortcodeAttr.FindAllStringSubmatch(raw, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		if value == "" {
			value = m[4]
		}
		attrs[strings.ToLower(m[1])] = value
	}
	return attrs
}
