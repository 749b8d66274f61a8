package usage

import (
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultHostnameCacheSize bounds the URL to site key cache.
const DefaultHostnameCacheSize = 512

// SiteResolver maps URLs to site keys (hostnames). Results, including
// unresolvable URLs, are cached.
type SiteResolver struct {
	cache *lru.Cache[string, string]
}

// NewSiteResolver creates a resolver with an LRU cache of the given size.
func NewSiteResolver(size int) (*SiteResolver, error) {
	if size <= 0 {
		size = DefaultHostnameCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &SiteResolver{cache: cache}, nil
}

// Resolve returns the site key for rawURL. ok is false for empty, malformed
// or host-less input, which means "no active site".
func (r *SiteResolver) Resolve(rawURL string) (site string, ok bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", false
	}

	if site, hit := r.cache.Get(rawURL); hit {
		return site, site != ""
	}

	site = hostname(rawURL)
	r.cache.Add(rawURL, site)
	return site, site != ""
}

func hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
