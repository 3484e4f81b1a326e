package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	DefaultSendBuffer = 256
)

// WebsocketHandler accepts websocket connections and joins each of them to the hub until it drops.
type WebsocketHandler struct {
	hub        *Hub
	sendBuffer int
	upgrader   websocket.Upgrader
}

func NewWebsocketHandler(h *Hub, sendBuffer int) *WebsocketHandler {
	if sendBuffer <= 0 {
		sendBuffer = DefaultSendBuffer
	}
	return &WebsocketHandler{
		hub:        h,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (w *WebsocketHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := w.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		w.hub.logger.Error("failed to upgrade", "err", err)
		return
	}
	defer conn.Close()

	peer := &wsPeer{id: uuid.NewString(), conn: conn, send: make(chan []byte, w.sendBuffer)}
	session, err := w.hub.Connect(peer)
	if err != nil {
		w.hub.logger.Error("failed to connect peer", "err", err)
		return
	}
	logger := w.hub.logger.With("peer", peer.id)

	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := peer.writeLoop(); err != nil {
			logger.Debug("write loop stopped", "err", err)
		}
		// unblock the reader when the writer fails first
		_ = conn.Close()
	}()

	if err := peer.readLoop(session, logger); err != nil {
		logger.Debug("read loop stopped", "err", err)
	}
	session.Close()
	peer.close()
	wg.Wait()
}

type wsPeer struct {
	id   string
	conn *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (p *wsPeer) ID() string {
	return p.id
}

func (p *wsPeer) Send(msg []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.send <- msg:
		return true
	default:
		return false
	}
}

func (p *wsPeer) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.send)
	}
}

func (p *wsPeer) readLoop(session *Session, logger *slog.Logger) error {
	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, msg, err := p.conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		if err := session.Handle(msg); err != nil {
			logger.Debug("dropped inbound event", "err", err)
		}
	}
}

func (p *wsPeer) writeLoop() error {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return nil
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-t.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return err
			}
		}
	}
}
