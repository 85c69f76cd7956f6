package delivery

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitecache/sitecache/internal/cache"
)

func newEngine(t *testing.T, opts cache.StoreOptions) (*Engine, cache.Entry, time.Time) {
	t.Helper()
	root := t.TempDir()
	resolver, err := cache.NewResolver(filepath.Join(root, "pages"), filepath.Join(root, "articles"))
	require.NoError(t, err)
	store, err := cache.NewStore(resolver)
	require.NoError(t, err)

	entry, err := resolver.Resolve("/hello/")
	require.NoError(t, err)
	modTime := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	opts.ModTime = modTime
	require.NoError(t, store.Store(context.Background(), entry, []byte("<p>plain</p>"), opts))
	return NewEngine(store), entry, modTime
}

func TestServePlain(t *testing.T) {
	engine, entry, modTime := newEngine(t, cache.StoreOptions{})

	out, err := engine.Serve(entry, Request{})
	require.NoError(t, err)
	assert.True(t, out.Terminal())
	assert.Equal(t, http.StatusOK, out.Status)
	assert.Equal(t, cache.VariantPlain, out.Variant)
	assert.Equal(t, "<p>plain</p>", string(out.Body))
	assert.Equal(t, HandlerName, out.Header.Get(HeaderHandler))
	assert.Equal(t, modTime.Format(http.TimeFormat), out.Header.Get("Last-Modified"))
	assert.Empty(t, out.Header.Get("Content-Encoding"))
}

func TestServeNotModified(t *testing.T) {
	engine, entry, modTime := newEngine(t, cache.StoreOptions{})

	out, err := engine.Serve(entry, Request{IfModifiedSince: modTime.Format(http.TimeFormat)})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, out.Status)
	assert.Empty(t, out.Body)
	assert.Equal(t, HandlerName, out.Header.Get(HeaderHandler))

	earlier := modTime.Add(-time.Second).Format(http.TimeFormat)
	out, err = engine.Serve(entry, Request{IfModifiedSince: earlier})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.Status)
}

func TestServeIgnoresMalformedIfModifiedSince(t *testing.T) {
	engine, entry, _ := newEngine(t, cache.StoreOptions{})
	out, err := engine.Serve(entry, Request{IfModifiedSince: "yesterday"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, out.Status)
}

func TestServeGzipNegotiation(t *testing.T) {
	engine, entry, _ := newEngine(t, cache.StoreOptions{Gzip: true})

	out, err := engine.Serve(entry, Request{AcceptEncoding: "gzip, deflate"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantGzip, out.Variant)
	assert.Equal(t, "gzip", out.Header.Get("Content-Encoding"))
	assert.Equal(t, "<p>plain</p>", gunzip(t, out.Body))

	out, err = engine.Serve(entry, Request{})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantPlain, out.Variant)
}

func TestServeHonoursZeroQuality(t *testing.T) {
	engine, entry, _ := newEngine(t, cache.StoreOptions{Gzip: true, WebP: []byte("<p>webp</p>")})

	out, err := engine.Serve(entry, Request{AcceptEncoding: "gzip;q=0, identity"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantPlain, out.Variant)
	assert.Empty(t, out.Header.Get("Content-Encoding"))

	out, err = engine.Serve(entry, Request{Accept: "image/webp;q=0, text/html", AcceptEncoding: "br, gzip; q=0.5"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantGzip, out.Variant)

	out, err = engine.Serve(entry, Request{AcceptEncoding: "x-gzip-like"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantPlain, out.Variant)
}

func TestServeWebPPriority(t *testing.T) {
	engine, entry, _ := newEngine(t, cache.StoreOptions{Gzip: true, WebP: []byte("<p>webp</p>")})

	out, err := engine.Serve(entry, Request{Accept: "image/webp,*/*", AcceptEncoding: "gzip"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantWebPGzip, out.Variant)
	assert.Equal(t, "<p>webp</p>", gunzip(t, out.Body))

	out, err = engine.Serve(entry, Request{Accept: "image/webp"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantWebP, out.Variant)
	assert.Equal(t, "<p>webp</p>", string(out.Body))
}

func TestServeWebPFallsBackToGzip(t *testing.T) {
	engine, entry, _ := newEngine(t, cache.StoreOptions{Gzip: true})

	out, err := engine.Serve(entry, Request{Accept: "image/webp", AcceptEncoding: "gzip"})
	require.NoError(t, err)
	assert.Equal(t, cache.VariantGzip, out.Variant)
}

func TestServeMissingEntry(t *testing.T) {
	engine, entry, _ := newEngine(t, cache.StoreOptions{})
	missing := cache.Entry{URLPath: "/nope", Dir: filepath.Join(filepath.Dir(filepath.Clean(entry.Dir)), "nope") + string(filepath.Separator)}
	_, err := engine.Serve(missing, Request{})
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func gunzip(t *testing.T, body []byte) string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	return string(plain)
}
