package httpkit

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

type CORSOptions struct {
	// AllowedOrigins holds exact origins, "*" for any, or a
	// "https://*.example.com" pattern matching any subdomain.
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

type originPolicy struct {
	any      bool
	exact    map[string]bool
	suffixes []suffixRule
}

type suffixRule struct {
	scheme string
	suffix string // ".example.com"
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{exact: map[string]bool{}}
	for _, o := range NormalizeList(origins) {
		switch {
		case o == "*":
			p.any = true
		case strings.Contains(o, "://*."):
			scheme, host, _ := strings.Cut(o, "://*")
			p.suffixes = append(p.suffixes, suffixRule{scheme: scheme, suffix: strings.ToLower(host)})
		default:
			p.exact[strings.TrimSuffix(o, "/")] = true
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any || p.exact[origin] {
		return true
	}
	if len(p.suffixes) == 0 {
		return false
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Host)
	for _, s := range p.suffixes {
		if u.Scheme == s.scheme && strings.HasSuffix(host, s.suffix) && len(host) > len(s.suffix) {
			return true
		}
	}
	return false
}

// CORS echoes allowed origins and short-circuits preflight requests with 204.
// Requests from other origins pass through without CORS headers.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	methods := opt.AllowedMethods
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	}
	headers := opt.AllowedHeaders
	if len(headers) == 0 {
		headers = []string{"Content-Type", "Authorization", "Accept"}
	}
	maxAge := opt.MaxAgeSeconds
	if maxAge == 0 {
		maxAge = 600
	}

	policy := newOriginPolicy(opt.AllowedOrigins)
	preflight := http.Header{
		"Access-Control-Allow-Methods": {strings.Join(methods, ", ")},
		"Access-Control-Allow-Headers": {strings.Join(headers, ", ")},
		"Access-Control-Max-Age":       {strconv.Itoa(maxAge)},
	}
	expose := strings.Join(opt.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			isPreflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

			if origin := r.Header.Get("Origin"); policy.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				if opt.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				if isPreflight {
					for k, v := range preflight {
						h.Set(k, v[0])
					}
				} else if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
			}

			if isPreflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NormalizeList trims entries and drops empty ones.
func NormalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
