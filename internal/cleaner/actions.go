package cleaner

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/mattjoyce/urlclean/internal/log"
)

const redirectCacheCategory = "redirect"

// apply runs a single action against u and returns the resulting URL.
// u may be modified in place; callers own it.
func (j *Job) apply(ctx context.Context, a *Action, u *url.URL) (*url.URL, error) {
	params := j.snap.config.Params

	switch a.Kind {
	case ActionRemoveQueryParams:
		names := queryNames(a, params)
		u.RawQuery = filterQuery(u.RawQuery, func(name string) bool {
			return !slices.Contains(names, name)
		})
		normalizeEmptyQuery(u)

	case ActionAllowQueryParams:
		names := queryNames(a, params)
		u.RawQuery = filterQuery(u.RawQuery, func(name string) bool {
			return slices.Contains(names, name)
		})
		normalizeEmptyQuery(u)

	case ActionRemoveQueryParamsMatching:
		u.RawQuery = filterQuery(u.RawQuery, func(name string) bool {
			return !a.re.MatchString(name)
		})
		normalizeEmptyQuery(u)

	case ActionRemoveFragment:
		u.Fragment = ""
		u.RawFragment = ""

	case ActionStripWWW:
		// Hosts are case-insensitive; the rest of the host keeps its case.
		host := u.Hostname()
		if len(host) > 4 && strings.EqualFold(host[:4], "www.") {
			u.Host = joinHostPort(host[4:], u.Port())
		}

	case ActionSetHost:
		u.Host = a.Host

	case ActionUnwrapQueryParam:
		value := u.Query().Get(a.Param)
		if value == "" {
			return nil, fmt.Errorf("%w: %s", ErrMissingQueryParam, a.Param)
		}
		return parseAbsolute(value)

	case ActionUseVar:
		value, ok := j.lookupVar(a.Var)
		if !ok || value == "" {
			return u, nil
		}
		return parseAbsolute(value)

	case ActionExpandRedirect:
		if params.HasFlag(FlagNoNetwork) {
			return u, nil
		}
		return j.expandRedirect(ctx, u)

	case ActionFail:
		if a.Message == "" {
			return nil, ErrRuleFailed
		}
		return nil, fmt.Errorf("%w: %s", ErrRuleFailed, a.Message)

	default:
		return nil, fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return u, nil
}

// expandRedirect issues a HEAD request without following redirects and
// returns the Location target. Results are cached by source URL; cache
// failures are logged and never fail the job.
func (j *Job) expandRedirect(ctx context.Context, u *url.URL) (*url.URL, error) {
	key := u.String()
	store := j.snap.cache

	cached, found, err := store.Get(ctx, redirectCacheCategory, key)
	if err != nil {
		log.WithComponent("cleaner").Warn("redirect cache read failed", "url", key, "error", err)
	} else if found {
		return parseAbsolute(cached)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, key, nil)
	if err != nil {
		return nil, fmt.Errorf("build redirect request: %w", err)
	}

	client := *j.snap.client
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("expand redirect: %w", err)
	}
	_ = resp.Body.Close()

	target := u
	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		loc, err := resp.Location()
		if err != nil && !errors.Is(err, http.ErrNoLocation) {
			return nil, fmt.Errorf("expand redirect: %w", err)
		}
		if loc != nil {
			target = loc
		}
	}

	if err := store.Put(ctx, redirectCacheCategory, key, target.String()); err != nil {
		log.WithComponent("cleaner").Warn("redirect cache write failed", "url", key, "error", err)
	}
	return target, nil
}

func queryNames(a *Action, params Params) []string {
	if a.Set == "" {
		return a.Params
	}
	return slices.Concat(a.Params, params.Set(a.Set))
}

// filterQuery keeps the pairs of raw whose decoded name satisfies keep.
// Pair order and encoding are preserved.
func filterQuery(raw string, keep func(name string) bool) string {
	if raw == "" {
		return raw
	}
	pairs := strings.Split(raw, "&")
	kept := pairs[:0]
	for _, pair := range pairs {
		name, _, _ := strings.Cut(pair, "=")
		if decoded, err := url.QueryUnescape(name); err == nil {
			name = decoded
		}
		if keep(name) {
			kept = append(kept, pair)
		}
	}
	return strings.Join(kept, "&")
}

func normalizeEmptyQuery(u *url.URL) {
	if u.RawQuery == "" {
		u.ForceQuery = false
	}
}

func joinHostPort(host, port string) string {
	if port == "" {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
