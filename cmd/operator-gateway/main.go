package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/trace"

	"lingap/internal/pkg/config"
	"lingap/internal/pkg/constants"
	"lingap/internal/pkg/logger"
	"lingap/internal/pkg/mq"
)

// operator-gateway 订阅审核队列，把部分回滚事件实时推给在线的审核人员。
// 没人在线时消息留在 kafka 里，审核人员上线后走消费组续读。

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub 维护所有活跃的审核人员连接，并负责消息广播。
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 64),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client] = struct{}{}
			h.lock.Unlock()
			logger.L().Info().Str("operator", client.operatorID).Msg("operator connected")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.lock.Unlock()
			logger.L().Info().Str("operator", client.operatorID).Msg("operator disconnected")
		case message := <-h.broadcast:
			h.lock.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// 写缓冲满说明连接已经坏了，交给 writePump 收尾
				}
			}
			h.lock.RUnlock()
		}
	}
}

// Client 是一个审核人员的 WebSocket 连接。
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	operatorID string
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// 审核端不上行业务消息，读循环只消化心跳并感知断连
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func serveWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	operatorID := r.URL.Query().Get("operatorId")
	if operatorID == "" {
		http.Error(w, "operatorId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.L().Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), operatorID: operatorID}
	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// consumeReviewQueue 把审核队列的消息灌进 hub 广播。
func consumeReviewQueue(ctx context.Context, hub *Hub, brokers []string) {
	reader := mq.NewReader(brokers, "operator-gateway", constants.ReviewQueueTopic)
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.L().Error().Err(err).Msg("failed to read from review queue")
			continue
		}
		msgCtx := mq.ExtractTraceContext(ctx, &msg)
		logger.L().Info().
			Str("submission_id", string(msg.Key)).
			Str("trace_id", trace.SpanContextFromContext(msgCtx).TraceID().String()).
			Msg("broadcasting review-required event to operators")
		hub.broadcast <- msg.Value
	}
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(err)
	}
	logger.Init("operator-gateway")

	hub := newHub()
	go hub.run()

	ctx, cancel := context.WithCancel(context.Background())
	go consumeReviewQueue(ctx, hub, cfg.Infra.Kafka.Brokers)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWs(hub, w, r)
	})

	server := &http.Server{Addr: ":8088", Handler: mux}
	go func() {
		logger.L().Info().Msg("operator gateway listening on :8088")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Fatal().Err(err).Msg("could not start operator gateway")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.L().Error().Err(err).Msg("error shutting down operator gateway")
	}
}
