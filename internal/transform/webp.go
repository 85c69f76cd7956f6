package transform

import (
	"bytes"
	"errors"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var imageExt = regexp.MustCompile(`(?i)\.(?:jpe?g|png)(\?[^\s,]*)?(\s|,|$)`)

// imageAttrs 是会被改写的属性；alt、href 等保持原样。
var imageAttrs = map[string]struct{}{
	"src":         {},
	"srcset":      {},
	"data-src":    {},
	"data-srcset": {},
}

// WebP 将 src、srcset、data-src 中的 jpg/jpeg/png 引用改写为同名 .webp。
// 未改写的标签按原始字节输出；文档无法解析时返回原内容。
func WebP(doc []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(doc))

	z := html.NewTokenizer(bytes.NewReader(doc))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if errors.Is(z.Err(), io.EOF) {
				return buf.Bytes()
			}
			return doc
		}
		// Token() 会原地把标签与属性名转成小写，必须先拷贝原始字节。
		raw := append([]byte(nil), z.Raw()...)
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			buf.Write(raw)
			continue
		}
		tok := z.Token()
		if !rewriteImageAttrs(&tok) {
			buf.Write(raw)
			continue
		}
		buf.WriteString(tok.String())
	}
}

func rewriteImageAttrs(tok *html.Token) bool {
	changed := false
	for i, attr := range tok.Attr {
		if _, ok := imageAttrs[strings.ToLower(attr.Key)]; !ok {
			continue
		}
		val := imageExt.ReplaceAllString(attr.Val, ".webp$1$2")
		if val != attr.Val {
			tok.Attr[i].Val = val
			changed = true
		}
	}
	return changed
}
