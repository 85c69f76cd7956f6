// Package article 维护文章片段缓存：只包含正文的 <article> 片段，
// 在内容保存时重新生成，供其它站点或前端直接嵌入。
package article

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sitecache/sitecache/internal/events"
)

// timestampLayout 对应 Y-m-j H:i:s：日不补零。
const timestampLayout = "2006-01-2 15:04:05"

// Record 是生成片段所需的内容字段。
type Record struct {
	ID    int64
	Type  string
	Slug  string
	Title string
	Body  string
}

// RecordFrom 从事件中的内容构造 Record。
func RecordFrom(c events.Content) Record {
	return Record{ID: c.ID, Type: c.Type, Slug: c.Slug, Title: c.Title, Body: c.Body}
}

// Renderer 将正文渲染为 HTML。
type Renderer interface {
	Render(ctx context.Context, rec Record) ([]byte, error)
}

// DefaultRenderer 先分段再展开短代码。
type DefaultRenderer struct {
	Shortcodes *Registry
}

// Render 实现 Renderer。
func (r DefaultRenderer) Render(ctx context.Context, rec Record) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	html := Autop(rec.Body)
	if r.Shortcodes != nil {
		html = r.Shortcodes.Expand(html)
	}
	return []byte(html), nil
}

// Wrap 生成最终写盘的片段：标题、正文与生成时间注释。
func Wrap(rec Record, body []byte, now time.Time) []byte {
	var b strings.Builder
	b.WriteString("<article>\n")
	fmt.Fprintf(&b, "<h1>%s</h1>\n", rec.Title)
	b.Write(body)
	fmt.Fprintf(&b, "<!-- %s -->\n", now.Format(timestampLayout))
	b.WriteString("</article>\n")
	return []byte(b.String())
}
