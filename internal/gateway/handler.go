// Chat endpoint handling - route locally or forward to the upstream.
package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/openclaw/clawlayer/internal/config"
	"github.com/openclaw/clawlayer/internal/monitoring"
	"github.com/openclaw/clawlayer/internal/proxy"
	"github.com/openclaw/clawlayer/internal/utils"
)

// writeJSON writes v as a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := utils.MarshalNoEscape(v)
	if err != nil {
		http.Error(w, "encode response failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

// writeError writes an OpenAI-style JSON error body.
func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": msg, "type": "gateway_error"},
	})
}

// handleChatCompletions is the main entry point: parse the request, run
// the router chain, then either render the canned result or relay the
// upstream response.
func (g *Gateway) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, "failed to read request", http.StatusBadRequest)
		return
	}

	req, err := parseRequest(body)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := g.currentChain().Route(r.Context(), req.LastMessage, &req.Routing)

	entry := monitoring.RequestLog{
		ID:        uuid.NewString(),
		Timestamp: start,
		Router:    result.Name,
		Message:   utils.Truncate(req.LastMessage, config.DefaultLogMessageLen),
		Proxied:   result.ShouldProxy,
		Tried:     result.Tried,
	}
	if trace, err := utils.MarshalNoEscape(result.Trace); err == nil && len(result.Trace) > 0 {
		entry.Trace = string(trace)
	}

	var served int
	if result.ShouldProxy {
		entry.Response, entry.Error = g.respondProxy(w, r, req)
	} else {
		served = g.respondLocal(w, req, result)
		entry.Response = utils.Truncate(result.Content, config.DefaultLogContentLen)
	}

	g.record(r.Context(), entry, time.Since(start), served)
}

// respondProxy forwards the conversation upstream and relays the answer.
// Returns the captured response snippet and the rendered error, if any.
func (g *Gateway) respondProxy(w http.ResponseWriter, r *http.Request, req *ParsedRequest) (string, string) {
	outcome := g.currentProxy().Forward(r.Context(), req.Messages, req.Routing.Stream)

	switch {
	case outcome.Err != nil:
		status := http.StatusBadGateway
		if outcome.Err.Kind == proxy.ErrHTTP {
			status = outcome.Err.Details.StatusCode
		}
		writeJSON(w, status, map[string]any{"error": outcome.Err})
		return "", outcome.Err.Message

	case outcome.Stream != nil:
		defer func() { _ = outcome.Stream.Close() }()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)

		flusher, ok := w.(http.Flusher)
		for {
			frame, more := outcome.Stream.Next()
			if !more {
				break
			}
			if _, err := w.Write(frame); err != nil {
				log.Debug().Err(err).Msg("client disconnected mid-stream")
				break
			}
			if ok {
				flusher.Flush()
			}
		}
		return utils.Truncate(outcome.Stream.CapturedContent(), config.DefaultLogContentLen), ""

	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(outcome.Response)
		answer := gjson.GetBytes(outcome.Response, "choices.0.message.content").String()
		return utils.Truncate(answer, config.DefaultLogContentLen), ""
	}
}

// record folds the request into stats, persists it, and notifies live
// dashboards. Persistence failures are logged, never surfaced.
func (g *Gateway) record(ctx context.Context, entry monitoring.RequestLog, latency time.Duration, served int) {
	g.stats.Record(entry, latency, served)
	if g.store != nil {
		if err := g.store.Insert(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("persist request log failed")
		}
	}
	g.broadcaster.Broadcast(entry)
}

// handleModels reports the single local model name.
func (g *Gateway) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models": []string{localModelName},
	})
}
