package article

import (
	"regexp"
	"strings"
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	blockStart     = regexp.MustCompile(`(?i)^<(?:address|article|aside|blockquote|details|div|dl|fieldset|figure|footer|form|h[1-6]|header|hr|li|main|nav|ol|p|pre|section|table|ul)\b`)
	preBlock       = regexp.MustCompile(`(?is)<pre\b.*?</pre>`)
)

// Autop 以空行分段并包裹 <p>，段内单个换行转换为 <br />。
// 已是块级元素的段落与 <pre> 内容保持原样。
func Autop(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var pres []string
	text = preBlock.ReplaceAllStringFunc(text, func(block string) string {
		pres = append(pres, block)
		return "\n\n<pre-placeholder>\n\n"
	})

	var b strings.Builder
	preIndex := 0
	for _, block := range paragraphBreak.Split(text, -1) {
		block = strings.TrimSpace(block)
		switch {
		case block == "":
			continue
		case block == "<pre-placeholder>":
			b.WriteString(pres[preIndex])
			preIndex++
		case blockStart.MatchString(block):
			b.WriteString(block)
		default:
			b.WriteString("<p>")
			b.WriteString(strings.ReplaceAll(block, "\n", "<br />\n"))
			b.WriteString("</p>")
		}
		b.WriteString("\n")
	}
	return b.String()
}
