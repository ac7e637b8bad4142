// Package chat is the websocket adapter: it owns connections and pumps,
// decodes inbound events and drives the orchestrator.
package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/banterhq/banter/internal/app"
	"github.com/banterhq/banter/internal/core"
	"github.com/banterhq/banter/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type ChatWSController struct {
	Orch       *app.Orchestrator
	Directory  app.IdentityDirectory
	SendBuffer int
	ReadLimit  int64
}

func NewChatWSController(orch *app.Orchestrator, dir app.IdentityDirectory, sendBuffer int, readLimit int64) *ChatWSController {
	if sendBuffer <= 0 {
		sendBuffer = 32
	}
	return &ChatWSController{Orch: orch, Directory: dir, SendBuffer: sendBuffer, ReadLimit: readLimit}
}

// WsChatConn wraps one websocket with a buffered non-blocking send queue.
type WsChatConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsChatConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsChatConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleChat upgrades the request, resolves the connection's identity via
// the session cookie (falling back to a generated guest name) and starts
// the pumps. The session id is minted per upgrade: overlapping sockets from
// one browser (refresh, flaky reconnect) must not share an id, or the stale
// socket's teardown would evict the fresh connection's presence entry. The
// client token stays a browser identity hint only.
func (ctl *ChatWSController) HandleChat(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "chat").Str("sid", string(sid)).Str("client", c.GetString("client_token")).Msg("new WS connection")

	user := ctl.resolveIdentity(c)

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "chat").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &WsChatConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendBuffer),
	}

	sess := core.NewMemberSession(user, conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(sid, sess, cancel)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, conn)

	ctl.Orch.OnConnect(ctx, sid)
}

// resolveIdentity maps the session cookie to a persistent identity, or
// mints a guest name and remembers it for the next connection.
func (ctl *ChatWSController) resolveIdentity(c *gin.Context) *domain.User {
	sess := sessions.Default(c)
	if name, ok := sess.Get("username").(string); ok && name != "" {
		user, err := ctl.Directory.ByUsername(c.Request.Context(), name)
		if err == nil {
			return user
		}
		if !errors.Is(err, domain.ErrIdentityNotFound) {
			log.Error().Err(err).Str("module", "chat").Str("username", name).Msg("identity lookup")
		}
		return domain.NewGuest(name)
	}

	name := domain.GuestName(time.Now())
	sess.Set("username", name)
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "chat").Msg("save guest session")
	}
	return domain.NewGuest(name)
}
