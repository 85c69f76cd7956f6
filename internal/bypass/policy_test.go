package bypass

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sitecache/sitecache/internal/settings"
)

func snapshot(s settings.CacheSettings) *settings.Snapshot {
	clean, _ := settings.Sanitize(s)
	return settings.Compile(clean)
}

func get(path string, query url.Values) Request {
	return Request{Method: "GET", Path: path, Query: query}
}

func TestDecideCachesPlainGet(t *testing.T) {
	d := NewPolicy().Decide(get("/about/", nil), snapshot(settings.CacheSettings{}))
	assert.False(t, d.Bypass)
	assert.Empty(t, d.Reason)
}

func TestDecideBypassesPost(t *testing.T) {
	req := get("/about/", nil)
	req.Method = "POST"
	d := NewPolicy().Decide(req, snapshot(settings.CacheSettings{}))
	assert.Equal(t, Decision{Bypass: true, Reason: "method"}, d)
}

func TestDecideQueryRules(t *testing.T) {
	policy := NewPolicy()
	snap := snapshot(settings.CacheSettings{})

	utm := url.Values{"utm_source": {"a"}, "utm_medium": {"b"}, "utm_campaign": {"c"}}
	assert.False(t, policy.Decide(get("/", utm), snap).Bypass)

	unknown := url.Values{"page": {"2"}}
	assert.Equal(t, "query", policy.Decide(get("/", unknown), snap).Reason)

	mixed := url.Values{"utm_source": {"a"}, "ref": {"x"}}
	assert.True(t, policy.Decide(get("/", mixed), snap).Bypass)

	custom := snapshot(settings.CacheSettings{IncludedQueryRegex: "/^(ref|utm_source)$/"})
	assert.False(t, policy.Decide(get("/", mixed), custom).Bypass)
}

func TestDecideCookieRules(t *testing.T) {
	policy := NewPolicy()
	req := get("/", nil)
	req.Cookies = []string{"theme", "wordpress_logged_in_abc"}
	assert.Equal(t, "cookie", policy.Decide(req, snapshot(settings.CacheSettings{})).Reason)

	req.Cookies = []string{"session"}
	assert.False(t, policy.Decide(req, snapshot(settings.CacheSettings{})).Bypass)
	assert.True(t, policy.Decide(req, snapshot(settings.CacheSettings{ExcludedCookieRegex: "^sess"})).Bypass)
}

func TestDecideExclusions(t *testing.T) {
	policy := NewPolicy()
	snap := snapshot(settings.CacheSettings{ExcludedIDs: "7, 9", ExcludedPathRegex: `/^\/checkout/`})

	req := get("/post/", nil)
	req.ContentID = 9
	assert.Equal(t, "excluded_id", policy.Decide(req, snap).Reason)

	assert.Equal(t, "excluded_path", policy.Decide(get("/checkout/pay/", nil), snap).Reason)
	assert.False(t, policy.Decide(get("/shop/checkout/", nil), snap).Bypass)
}

func TestDecideKindAndPassword(t *testing.T) {
	policy := NewPolicy()
	snap := snapshot(settings.CacheSettings{})

	req := get("/missing/", nil)
	req.Kind = KindNotFound
	assert.Equal(t, "kind:404", policy.Decide(req, snap).Reason)

	req = get("/secret/", nil)
	req.PasswordRequired = true
	assert.Equal(t, "password", policy.Decide(req, snap).Reason)
}

func TestDecideHook(t *testing.T) {
	policy := NewPolicy()
	policy.AddHook(func(r Request) bool { return r.Path == "/live/" })
	snap := snapshot(settings.CacheSettings{})

	assert.Equal(t, "hook", policy.Decide(get("/live/", nil), snap).Reason)
	assert.False(t, policy.Decide(get("/static/", nil), snap).Bypass)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		path  string
		query url.Values
		want  string
	}{
		{"/robots.txt", nil, KindRobots},
		{"/", url.Values{"s": {"term"}}, KindSearch},
		{"/draft/", url.Values{"preview": {"true"}}, KindPreview},
		{"/feed/", nil, KindFeed},
		{"/news/feed/", nil, KindFeed},
		{"/news/launch/trackback/", nil, KindTrackback},
		{"/feedback/", nil, ""},
		{"/about/", nil, ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.path, tc.query), tc.path)
	}
}

func TestMissingTrailingSlash(t *testing.T) {
	assert.True(t, MissingTrailingSlash("/%postname%/", "/about"))
	assert.True(t, MissingTrailingSlash("/%postname%/", "/about?x=1"))
	assert.False(t, MissingTrailingSlash("/%postname%/", "/about/"))
	assert.False(t, MissingTrailingSlash("/%postname%/", "/about/?x=1"))
	assert.False(t, MissingTrailingSlash("/%postname%", "/about"))
}
