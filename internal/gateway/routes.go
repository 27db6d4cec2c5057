package gateway

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	"github.com/telos-app/telos-offline/internal/gateway/cache"
	"github.com/telos-app/telos-offline/internal/logging"
)

// staticExtensions are the file extensions served cache-first.
var staticExtensions = map[string]bool{
	".js":    true,
	".css":   true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
	".svg":   true,
	".webp":  true,
	".ico":   true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".map":   true,
	".json":  true,
}

// route applies the strategy table, top to bottom, first match wins:
//
//  1. non-GET            — pass through
//  2. cross-origin       — pass through
//  3. API prefix         — network only
//  4. navigation         — network first, fall back to cache, then shell
//  5. static asset       — cache first
//  6. everything else    — network first, fall back to cache, no shell
func (g *Gateway) route(w http.ResponseWriter, r *http.Request) {
	if g.State() != StateActivated {
		// Not yet in control of the scope.
		g.proxy.ServeHTTP(w, r)
		return
	}

	if r.Method != http.MethodGet {
		g.proxy.ServeHTTP(w, r)
		return
	}

	// Absolute-form requests for another host are cross-origin.
	if r.URL.IsAbs() && r.URL.Host != g.origin.Host {
		g.proxy.ServeHTTP(w, r)
		return
	}

	if strings.HasPrefix(r.URL.Path, g.cfg.APIPrefix) {
		// Freshness of API data belongs to the application cache layer,
		// not the gateway.
		g.proxy.ServeHTTP(w, r)
		return
	}

	if isNavigation(r) {
		g.networkFirst(w, r, true)
		return
	}

	if g.isStaticAsset(r.URL.Path) {
		g.cacheFirst(w, r)
		return
	}

	g.networkFirst(w, r, false)
}

// isNavigation reports whether the request is a full-page load.
func isNavigation(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// isStaticAsset reports whether the path belongs to the fixed static set:
// built bundles under /assets/ and files with a common static extension.
func (g *Gateway) isStaticAsset(p string) bool {
	if strings.HasPrefix(p, "/assets/") {
		return true
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// cacheKey is the request path plus query, the unit both partitions key on.
func cacheKey(r *http.Request) string {
	return r.URL.RequestURI()
}

// cacheFirst serves from cache when a match exists, otherwise fetches from
// the network and stores the response in the dynamic partition.
func (g *Gateway) cacheFirst(w http.ResponseWriter, r *http.Request) {
	key := cacheKey(r)

	if stored := g.lookup(key); stored != nil {
		writeStored(w, stored, true)
		return
	}

	resp, err := g.fetchOrigin(r.Context(), key, r.Header)
	if err != nil {
		logging.Debug("Network miss with empty cache", map[string]interface{}{"key": key})
		http.Error(w, "offline and not cached", http.StatusGatewayTimeout)
		return
	}

	if resp.Status == http.StatusOK {
		if err := g.dynamic.Put(key, resp); err != nil {
			logging.Warn("Failed to store response in dynamic partition",
				map[string]interface{}{"key": key, "error": err.Error()})
		}
	}
	writeStored(w, resp, false)
}

// networkFirst fetches from the network, storing successful responses in
// the dynamic partition. On network failure it falls back to the cached
// match; navigation requests additionally fall back to the cached shell
// root so the application can still boot.
func (g *Gateway) networkFirst(w http.ResponseWriter, r *http.Request, shellFallback bool) {
	key := cacheKey(r)

	resp, err := g.fetchOrigin(r.Context(), key, r.Header)
	if err == nil {
		if resp.Status == http.StatusOK {
			if putErr := g.dynamic.Put(key, resp); putErr != nil {
				logging.Warn("Failed to store response in dynamic partition",
					map[string]interface{}{"key": key, "error": putErr.Error()})
			}
		}
		writeStored(w, resp, false)
		return
	}

	if stored := g.lookup(key); stored != nil {
		writeStored(w, stored, true)
		return
	}

	if shellFallback {
		if shell, shellErr := g.static.Match("/"); shellErr == nil && shell != nil {
			writeStored(w, shell, true)
			return
		}
	}

	http.Error(w, "offline and not cached", http.StatusGatewayTimeout)
}

// lookup checks the static partition, then the dynamic one. Read errors are
// treated as misses.
func (g *Gateway) lookup(key string) *cache.StoredResponse {
	if stored, err := g.static.Match(key); err == nil && stored != nil {
		return stored
	}
	if stored, err := g.dynamic.Match(key); err == nil && stored != nil {
		return stored
	}
	return nil
}

// writeStored replays a stored response onto the wire.
func writeStored(w http.ResponseWriter, resp *cache.StoredResponse, fromCache bool) {
	for k, vv := range resp.Header {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	if fromCache {
		w.Header().Set("X-Offline-Cache", "hit")
	}
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}

// controlMessage is the one message shape the gateway accepts.
type controlMessage struct {
	Type string `json:"type"`
}

// handleMessage processes control messages. SKIP_WAITING forces a waiting
// gateway version to activate on demand.
func (g *Gateway) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg controlMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, "malformed control message", http.StatusBadRequest)
		return
	}

	switch msg.Type {
	case "SKIP_WAITING":
		if g.State() == StateInstalled {
			if err := g.Activate(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
	default:
		http.Error(w, "unknown message type", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "state": string(g.State())})
}

// handleState reports the lifecycle state and partition names.
func (g *Gateway) handleState(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"state":   string(g.State()),
		"static":  g.static.Name(),
		"dynamic": g.dynamic.Name(),
	})
}
