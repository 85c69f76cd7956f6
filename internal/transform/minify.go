// Package transform 在页面写入缓存之前对 HTML 做压缩与图片格式改写。
package transform

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/sitecache/sitecache/internal/settings"
)

var (
	// 原样保留的块；script 在 MinifyHTMLAndJS 级别下单独处理。
	preservedBlock = regexp.MustCompile(`(?is)<(pre|textarea|script|style)\b[^>]*>.*?</(?:pre|textarea|script|style)\s*>`)
	htmlComment    = regexp.MustCompile(`(?s)<!--.*?-->`)
	whitespaceRun  = regexp.MustCompile(`[ \t\r\n\f]{2,}|[\t\r\n\f]`)
	scriptOpenTag  = regexp.MustCompile(`(?is)^<script\b[^>]*>`)
	scriptSrcAttr  = regexp.MustCompile(`(?i)\ssrc\s*=`)
)

const placeholderPrefix = "\x00sitecache:"

// Minify 按级别压缩 HTML；MinifyDisabled 或未知级别时原样返回。
func Minify(html []byte, level settings.MinifyLevel) []byte {
	if level != settings.MinifyHTML && level != settings.MinifyHTMLAndJS {
		return html
	}

	var blocks [][]byte
	out := preservedBlock.ReplaceAllFunc(html, func(block []byte) []byte {
		if level == settings.MinifyHTMLAndJS && isInlineScript(block) {
			block = minifyScript(block)
		}
		blocks = append(blocks, block)
		return []byte(placeholderPrefix + strconv.Itoa(len(blocks)-1) + "\x00")
	})

	out = htmlComment.ReplaceAllFunc(out, func(comment []byte) []byte {
		if isConditionalComment(comment) {
			return comment
		}
		return nil
	})
	out = whitespaceRun.ReplaceAll(out, []byte(" "))
	out = bytes.TrimSpace(out)

	for i := len(blocks) - 1; i >= 0; i-- {
		token := []byte(placeholderPrefix + strconv.Itoa(i) + "\x00")
		out = bytes.Replace(out, token, blocks[i], 1)
	}
	return out
}

func isConditionalComment(comment []byte) bool {
	return bytes.HasPrefix(comment, []byte("<!--[if")) || bytes.HasPrefix(comment, []byte("<!--<![endif]"))
}

func isInlineScript(block []byte) bool {
	open := scriptOpenTag.Find(block)
	return open != nil && !scriptSrcAttr.Match(open)
}

// minifyScript 删除行注释与空行。行内的 // 可能出现在字符串或 URL 中，保持不动。
func minifyScript(block []byte) []byte {
	lines := bytes.Split(block, []byte("\n"))
	kept := lines[:0]
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || bytes.HasPrefix(trimmed, []byte("//")) {
			continue
		}
		kept = append(kept, trimmed)
	}
	return bytes.Join(kept, []byte("\n"))
}
