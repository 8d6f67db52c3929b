package monitoring

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/clawlayer/internal/utils"
)

// writeTimeout bounds one broadcast write; a stalled dashboard tab must
// not back-pressure request handling.
const writeTimeout = 5 * time.Second

// Broadcaster fans request events out to connected dashboard websockets.
type Broadcaster struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{conns: make(map[*websocket.Conn]struct{})}
}

// ServeHTTP upgrades the request and keeps the connection registered until
// the client goes away. The read loop exists only to detect closure.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // dashboard is same-host; no origin list to check
	})
	if err != nil {
		log.Warn().Err(err).Msg("websocket accept failed")
		return
	}

	b.mu.Lock()
	b.conns[conn] = struct{}{}
	total := len(b.conns)
	b.mu.Unlock()
	log.Debug().Int("connections", total).Msg("dashboard connected")

	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}

	b.remove(conn)
	_ = conn.Close(websocket.StatusNormalClosure, "done")
}

// Broadcast sends event as JSON to every connected client. Dead
// connections are dropped.
func (b *Broadcaster) Broadcast(event any) {
	payload, err := utils.MarshalNoEscape(event)
	if err != nil {
		log.Warn().Err(err).Msg("broadcast encode failed")
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.conns))
	for c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := c.Write(ctx, websocket.MessageText, payload)
		cancel()
		if err != nil {
			b.remove(c)
			_ = c.Close(websocket.StatusAbnormalClosure, "write failed")
		}
	}
}

// ConnectionCount reports how many dashboards are attached.
func (b *Broadcaster) ConnectionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.conns, conn)
	b.mu.Unlock()
}
