// Package gateway implements the offline fetch router that fronts the Telos
// web UI. It is the native counterpart of a browser service worker: it runs
// in its own process context, intercepts every page fetch, and answers each
// from the network or from versioned cache partitions depending on the
// request shape. It shares nothing with the main application but the
// persistent store and an explicit control message.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/telos-app/telos-offline/internal/gateway/cache"
	"github.com/telos-app/telos-offline/internal/logging"
)

// State is the gateway lifecycle state.
type State string

const (
	StateNew        State = "new"
	StateInstalling State = "installing"
	StateInstalled  State = "installed" // waiting to activate
	StateActivating State = "activating"
	StateActivated  State = "activated"
)

// DefaultShellAssets is the fixed manifest of shell assets precached at
// install time: the minimum needed to boot the application offline.
var DefaultShellAssets = []string{
	"/",
	"/manifest.json",
	"/icons/icon-192.png",
	"/icons/icon-512.png",
}

// Config holds gateway configuration.
type Config struct {
	// Origin is the upstream application origin, e.g. "https://app.telos.ink".
	Origin string

	// Version tags both cache partitions. Bumping it makes the previous
	// generation stale; activation evicts it.
	Version string

	// ShellAssets overrides DefaultShellAssets when non-nil.
	ShellAssets []string

	// APIPrefix marks paths that always bypass the cache. Defaults to "/api/".
	APIPrefix string

	// CacheDir is where partitions live on disk.
	CacheDir string

	// SkipWaiting activates immediately after install. When false the
	// gateway stays in the installed state until a SKIP_WAITING control
	// message arrives.
	SkipWaiting bool
}

// Gateway routes intercepted fetches through the caching strategies.
type Gateway struct {
	cfg     Config
	origin  *url.URL
	store   *cache.Store
	static  *cache.Partition
	dynamic *cache.Partition
	proxy   *httputil.ReverseProxy
	client  *http.Client

	mu    sync.Mutex
	state State
}

// New creates a Gateway. Install must be called before the handler starts
// intercepting; until activation every request passes through untouched.
func New(cfg Config) (*Gateway, error) {
	origin, err := url.Parse(cfg.Origin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return nil, fmt.Errorf("invalid gateway origin %q", cfg.Origin)
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/"
	}
	if cfg.ShellAssets == nil {
		cfg.ShellAssets = DefaultShellAssets
	}
	if cfg.Version == "" {
		cfg.Version = "v1"
	}

	store := cache.NewStore(cfg.CacheDir)

	g := &Gateway{
		cfg:     cfg,
		origin:  origin,
		store:   store,
		static:  store.Partition(StaticPartitionName(cfg.Version)),
		dynamic: store.Partition(DynamicPartitionName(cfg.Version)),
		proxy:   httputil.NewSingleHostReverseProxy(origin),
		client:  &http.Client{},
	}
	g.state = StateNew
	return g, nil
}

// StaticPartitionName returns the static partition name for a version tag.
func StaticPartitionName(version string) string {
	return cache.Prefix + "static-" + version
}

// DynamicPartitionName returns the dynamic partition name for a version tag.
func DynamicPartitionName(version string) string {
	return cache.Prefix + "dynamic-" + version
}

// State returns the current lifecycle state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
	logging.Debug("Gateway state changed", map[string]interface{}{"state": string(s)})
}

// Install seeds the static partition with the shell asset manifest. A shell
// asset that cannot be fetched fails the install: a half-seeded shell cannot
// boot the application offline. With SkipWaiting set the gateway activates
// immediately; otherwise it waits for the control message.
func (g *Gateway) Install(ctx context.Context) error {
	g.setState(StateInstalling)

	for _, path := range g.cfg.ShellAssets {
		resp, err := g.fetchOrigin(ctx, path, nil)
		if err != nil {
			g.setState(StateNew)
			return fmt.Errorf("failed to precache shell asset %s: %w", path, err)
		}
		if resp.Status != http.StatusOK {
			g.setState(StateNew)
			return fmt.Errorf("failed to precache shell asset %s: status %d", path, resp.Status)
		}
		if err := g.static.Put(path, resp); err != nil {
			g.setState(StateNew)
			return err
		}
	}

	g.setState(StateInstalled)
	logging.Info("Gateway installed", map[string]interface{}{
		"version": g.cfg.Version,
		"assets":  len(g.cfg.ShellAssets),
	})

	if g.cfg.SkipWaiting {
		return g.Activate()
	}
	return nil
}

// Activate evicts every application-prefixed partition whose name is stale
// relative to the current version tag, then begins intercepting.
func (g *Gateway) Activate() error {
	g.setState(StateActivating)

	names, err := g.store.List()
	if err != nil {
		g.setState(StateInstalled)
		return err
	}

	for _, name := range names {
		if !strings.HasPrefix(name, cache.Prefix) {
			continue
		}
		if name == g.static.Name() || name == g.dynamic.Name() {
			continue
		}
		if err := g.store.Delete(name); err != nil {
			logging.Warn("Failed to evict stale cache partition",
				map[string]interface{}{"partition": name, "error": err.Error()})
			continue
		}
		logging.Info("Evicted stale cache partition", map[string]interface{}{"partition": name})
	}

	g.setState(StateActivated)
	return nil
}

// Handler returns the gateway's HTTP handler. Control endpoints are routed
// under /_gateway; everything else goes through the strategy table.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(recoveryMiddleware)
	r.Use(loggingMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Post("/_gateway/message", g.handleMessage)
	r.Get("/_gateway/state", g.handleState)
	r.Handle("/*", http.HandlerFunc(g.route))

	return r
}

// fetchOrigin performs one GET against the upstream origin and captures the
// response in storable form. headers may be nil.
func (g *Gateway) fetchOrigin(ctx context.Context, path string, headers http.Header) (*cache.StoredResponse, error) {
	u := *g.origin
	if i := strings.IndexByte(path, '?'); i >= 0 {
		u.Path = path[:i]
		u.RawQuery = path[i+1:]
	} else {
		u.Path = path
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	for k, vv := range headers {
		if strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	return &cache.StoredResponse{
		Status: resp.StatusCode,
		Header: resp.Header.Clone(),
		Body:   body,
	}, nil
}
