// Web API - the JSON surface behind the dashboard.
//
// Endpoints are restricted to loopback; operational data and config
// editing have no business being reachable from the network.
package gateway

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/router"
)

// isLoopback reports whether the remote address is a loopback interface.
func isLoopback(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (g *Gateway) requireLoopback(w http.ResponseWriter, r *http.Request) bool {
	if !isLoopback(r.RemoteAddr) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return false
	}
	return true
}

// handleStats returns the aggregate counters.
func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	snapshot := g.stats.Snapshot()
	snapshot.Connections = g.broadcaster.ConnectionCount()
	writeJSON(w, http.StatusOK, snapshot)
}

// handleLogs returns recent request logs, newest first. ?limit=N caps the
// count; the in-memory ring serves the hot path and the store backfills
// after a restart.
func (g *Gateway) handleLogs(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	logs := g.stats.RecentLogs(limit)
	if len(logs) == 0 && g.store != nil {
		stored, err := g.store.Recent(r.Context(), limit)
		if err != nil {
			log.Warn().Err(err).Msg("read stored logs failed")
		} else {
			logs = stored
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

type routerInfo struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// handleRouters lists the active chain in priority order.
func (g *Gateway) handleRouters(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	routers := g.currentChain().Routers()
	infos := make([]routerInfo, 0, len(routers))
	for i, rt := range routers {
		infos = append(infos, routerInfo{Name: rt.Name(), Priority: i + 1})
	}
	writeJSON(w, http.StatusOK, map[string]any{"routers": infos})
}

// handleTest dry-runs a message through the chain without serving it,
// returning the would-be result and the full trace.
func (g *Gateway) handleTest(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := decodeJSONBody(r, &req); err != nil || req.Message == "" {
		writeError(w, "body must be {\"message\": \"...\"}", http.StatusBadRequest)
		return
	}

	result := g.currentChain().Route(r.Context(), req.Message, &router.RoutingContext{Role: "user"})
	writeJSON(w, http.StatusOK, map[string]any{
		"router":       result.Name,
		"should_proxy": result.ShouldProxy,
		"content":      result.Content,
		"tool_calls":   result.ToolCalls,
		"trace":        result.Trace,
		"tried":        result.Tried,
	})
}

// handleConfig serves the live configuration as YAML and accepts updated
// YAML, persisting with backup rotation and hot-reloading on success.
func (g *Gateway) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	switch r.Method {
	case http.MethodGet:
		data, err := g.currentConfig().Marshal()
		if err != nil {
			writeError(w, "marshal config failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/x-yaml")
		_, _ = w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize))
		if err != nil {
			writeError(w, "failed to read request", http.StatusBadRequest)
			return
		}
		// Validate before anything touches disk.
		var probe config.Config
		if err := yaml.Unmarshal(body, &probe); err != nil {
			writeError(w, "invalid YAML: "+err.Error(), http.StatusBadRequest)
			return
		}
		if g.configPath == "" {
			writeError(w, "gateway started without a config file", http.StatusConflict)
			return
		}
		if err := config.SaveWithBackup(g.configPath, body, config.DefaultMaxConfigBackups); err != nil {
			writeError(w, "save config failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := g.reload(); err != nil {
			writeError(w, "saved, but reload failed: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})

	default:
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleConfigReload re-reads the config file from disk.
func (g *Gateway) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := g.reload(); err != nil {
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleLive upgrades to a websocket that receives every request log.
func (g *Gateway) handleLive(w http.ResponseWriter, r *http.Request) {
	if !g.requireLoopback(w, r) {
		return
	}
	g.broadcaster.ServeHTTP(w, r)
}

func decodeJSONBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}
