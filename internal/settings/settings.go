package settings

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// MinifyLevel controls how rendered HTML is compacted before it is stored.
type MinifyLevel int

const (
	MinifyDisabled  MinifyLevel = 0
	MinifyHTML      MinifyLevel = 1
	MinifyHTMLAndJS MinifyLevel = 2
)

// Valid reports whether the level is one of the known values.
func (m MinifyLevel) Valid() bool {
	return m >= MinifyDisabled && m <= MinifyHTMLAndJS
}

const (
	// DefaultCookieRegex marks visitors whose pages must never come from cache.
	DefaultCookieRegex = `^(wp-postpass|wordpress_logged_in|comment_author)_`
	// DefaultQueryRegex lists campaign tracking attributes that do not bust the cache.
	DefaultQueryRegex = `^utm_(source|medium|campaign|term|content)$`
)

// CacheSettings is the editable cache configuration document.
type CacheSettings struct {
	TTLHours            int         `mapstructure:"TTLHours" yaml:"ttl_hours" json:"ttl_hours"`
	ExcludedIDs         string      `mapstructure:"ExcludedIDs" yaml:"excluded_ids" json:"excluded_ids"`
	ExcludedPathRegex   string      `mapstructure:"ExcludedPathRegex" yaml:"excluded_path_regex" json:"excluded_path_regex"`
	ExcludedCookieRegex string      `mapstructure:"ExcludedCookieRegex" yaml:"excluded_cookie_regex" json:"excluded_cookie_regex"`
	IncludedQueryRegex  string      `mapstructure:"IncludedQueryRegex" yaml:"included_query_regex" json:"included_query_regex"`
	Compress            bool        `mapstructure:"Compress" yaml:"compress" json:"compress"`
	WebP                bool        `mapstructure:"WebP" yaml:"webp" json:"webp"`
	MinifyLevel         MinifyLevel `mapstructure:"MinifyLevel" yaml:"minify_level" json:"minify_level"`
	ClearOnUpgrade      bool        `mapstructure:"ClearOnUpgrade" yaml:"clear_on_upgrade" json:"clear_on_upgrade"`
	ClearHomeOnPublish  bool        `mapstructure:"ClearHomeOnPublish" yaml:"clear_home_on_publish" json:"clear_home_on_publish"`
	ArticlePurgeOnTrash bool        `mapstructure:"ArticlePurgeOnTrash" yaml:"article_purge_on_trash" json:"article_purge_on_trash"`
}

// Snapshot is the compiled, read-only view of CacheSettings.
type Snapshot struct {
	Settings       CacheSettings
	TTL            time.Duration
	ExcludedIDs    map[int64]struct{}
	ExcludedPath   *regexp.Regexp
	ExcludedCookie *regexp.Regexp
	IncludedQuery  *regexp.Regexp
}

// Compile builds a Snapshot. Settings are expected to be sanitized already;
// regexes that fail to compile are treated as unset.
func Compile(s CacheSettings) *Snapshot {
	ids, _ := ParseIDs(s.ExcludedIDs)
	snap := &Snapshot{
		Settings:    s,
		TTL:         time.Duration(s.TTLHours) * time.Hour,
		ExcludedIDs: ids,
	}
	snap.ExcludedPath = compileOrNil(s.ExcludedPathRegex)
	snap.ExcludedCookie = compileOrNil(s.ExcludedCookieRegex)
	if snap.ExcludedCookie == nil {
		snap.ExcludedCookie = regexp.MustCompile(DefaultCookieRegex)
	}
	snap.IncludedQuery = compileOrNil(s.IncludedQueryRegex)
	if snap.IncludedQuery == nil {
		snap.IncludedQuery = regexp.MustCompile(DefaultQueryRegex)
	}
	return snap
}

// Excluded reports whether the content id is on the exclusion list.
func (s *Snapshot) Excluded(id int64) bool {
	if s == nil || id == 0 {
		return false
	}
	_, ok := s.ExcludedIDs[id]
	return ok
}

// Sanitize validates every field the way the settings form does: invalid
// regexes and unparsable ids are dropped and reported as warnings.
func Sanitize(in CacheSettings) (CacheSettings, []string) {
	out := in
	var warnings []string

	if out.TTLHours < 0 {
		out.TTLHours = 0
		warnings = append(warnings, "ttl_hours: negative value reset to 0")
	}
	if !out.MinifyLevel.Valid() {
		out.MinifyLevel = MinifyDisabled
		warnings = append(warnings, "minify_level: unknown level reset to 0")
	}

	ids, bad := parseIDsLenient(out.ExcludedIDs)
	out.ExcludedIDs = formatIDs(ids)
	for _, token := range bad {
		warnings = append(warnings, fmt.Sprintf("excluded_ids: dropped %q", token))
	}

	for _, field := range []struct {
		name  string
		value *string
	}{
		{"excluded_path_regex", &out.ExcludedPathRegex},
		{"excluded_cookie_regex", &out.ExcludedCookieRegex},
		{"included_query_regex", &out.IncludedQueryRegex},
	} {
		normalized, ok := ValidateRegex(*field.value)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("%s: invalid expression dropped", field.name))
		}
		*field.value = normalized
	}

	return out, warnings
}

// ValidateRegex accepts "/expr/" or a bare "expr" and returns the delimited
// form. Empty input is valid and stays empty; an expression that does not
// compile yields "" and false.
func ValidateRegex(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", true
	}
	pattern := stripDelimiters(raw)
	if _, err := regexp.Compile(pattern); err != nil {
		return "", false
	}
	return "/" + pattern + "/", true
}

// ParseIDs parses a comma separated id list.
func ParseIDs(raw string) (map[int64]struct{}, error) {
	ids, bad := parseIDsLenient(raw)
	if len(bad) > 0 {
		return nil, fmt.Errorf("invalid content id %q", bad[0])
	}
	return ids, nil
}

func parseIDsLenient(raw string) (map[int64]struct{}, []string) {
	ids := make(map[int64]struct{})
	var bad []string
	for _, token := range strings.Split(raw, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		id, err := strconv.ParseInt(token, 10, 64)
		if err != nil || id <= 0 {
			bad = append(bad, token)
			continue
		}
		ids[id] = struct{}{}
	}
	return ids, bad
}

func formatIDs(ids map[int64]struct{}) string {
	if len(ids) == 0 {
		return ""
	}
	sorted := make([]int64, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func stripDelimiters(raw string) string {
	if len(raw) >= 2 && strings.HasPrefix(raw, "/") && strings.HasSuffix(raw, "/") {
		return raw[1 : len(raw)-1]
	}
	return raw
}

func compileOrNil(raw string) *regexp.Regexp {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	re, err := regexp.Compile(stripDelimiters(raw))
	if err != nil {
		return nil
	}
	return re
}
