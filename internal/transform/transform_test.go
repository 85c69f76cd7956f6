package transform

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sitecache/sitecache/internal/settings"
)

func TestMinifyDisabledReturnsInput(t *testing.T) {
	in := []byte("<p>\n  hello  </p>")
	assert.Equal(t, in, Minify(in, settings.MinifyDisabled))
}

func TestMinifyHTMLCollapsesWhitespaceAndComments(t *testing.T) {
	in := []byte("<html>\n  <body>\n    <!-- banner -->\n    <p>hi   there</p>\n  </body>\n</html>\n")
	got := string(Minify(in, settings.MinifyHTML))
	assert.Equal(t, "<html> <body> <p>hi there</p> </body> </html>", got)
}

func TestMinifyKeepsConditionalComments(t *testing.T) {
	in := []byte("<head>\n<!--[if IE]><link rel=\"stylesheet\" href=\"ie.css\"><![endif]-->\n</head>")
	got := string(Minify(in, settings.MinifyHTML))
	assert.Contains(t, got, `<!--[if IE]><link rel="stylesheet" href="ie.css"><![endif]-->`)
}

func TestMinifyPreservesVerbatimBlocks(t *testing.T) {
	in := []byte("<div>\n\n<pre>  a\n    b</pre>\n<textarea>\n x  y</textarea>\n<script>\n// note\nvar a = 1;\n</script></div>")
	got := string(Minify(in, settings.MinifyHTML))
	assert.Contains(t, got, "<pre>  a\n    b</pre>")
	assert.Contains(t, got, "<textarea>\n x  y</textarea>")
	assert.Contains(t, got, "// note")
}

func TestMinifyHTMLAndJSStripsInlineScriptComments(t *testing.T) {
	in := []byte("<script>\n  // setup\n\n  var url = \"https://example.com\";\n</script><script src=\"app.js\">\n// keep\n</script>")
	got := string(Minify(in, settings.MinifyHTMLAndJS))
	assert.NotContains(t, got, "// setup")
	assert.Contains(t, got, `var url = "https://example.com";`)
	assert.Contains(t, got, "// keep")
}

func TestWebPRewritesImageAttributes(t *testing.T) {
	in := []byte(`<img src="/a/photo.JPG" srcset="/a/s.png 1x, /a/l.jpeg?v=2 2x" data-src='/lazy.png' alt="x.png"><a href="/full.jpg">x</a>`)
	got := string(WebP(in))
	assert.Contains(t, got, `src="/a/photo.webp"`)
	assert.Contains(t, got, `srcset="/a/s.webp 1x, /a/l.webp?v=2 2x"`)
	assert.Contains(t, got, `data-src="/lazy.webp"`)
	assert.Contains(t, got, `alt="x.png"`)
	assert.Contains(t, got, `href="/full.jpg"`)
}

func TestWebPKeepsUntouchedMarkupVerbatim(t *testing.T) {
	in := []byte(`<div class='x'><script>var s = "<img src=a.png>";</script><img src="/p.png" alt='keep'></div>`)
	got := string(WebP(in))
	assert.Contains(t, got, `<div class='x'><script>var s = "<img src=a.png>";</script>`)
	assert.Contains(t, got, `<img src="/p.webp" alt="keep">`)
	assert.True(t, strings.HasSuffix(got, `</div>`))

	mixed := []byte(`<DIV ClassName="x"><svg viewBox="0 0 10 10"></svg><IMG SRC="/q.png"></DIV>`)
	got = string(WebP(mixed))
	assert.Contains(t, got, `<DIV ClassName="x"><svg viewBox="0 0 10 10"></svg>`)
	assert.Contains(t, got, `src="/q.webp"`)
	assert.True(t, strings.HasSuffix(got, `</DIV>`))
}

func TestWebPLeavesOtherFormats(t *testing.T) {
	in := []byte(`<img src="/logo.svg"><img src="/anim.gif">`)
	assert.Equal(t, string(in), string(WebP(in)))
}
