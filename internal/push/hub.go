// Пакет push — рассылка состояния таймеров по websocket.
//
// Hub держит подключения экранов и пультов, отправляет снимок при
// подключении, после каждой мутации (Notify) и периодически, чтобы
// обратный отсчёт обновлялся без опроса /api/state.
// Клиент с переполненным буфером отправки отключается.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/stagetimer/internal/api/middleware"
	"github.com/bigkaa/stagetimer/internal/domain/model"
)

const (
	// writeWait — таймаут записи одного сообщения.
	writeWait = 10 * time.Second
	// pongWait — максимальное ожидание pong от клиента.
	pongWait = 60 * time.Second
	// pingPeriod — интервал ping, меньше pongWait.
	pingPeriod = pongWait * 9 / 10
	// maxMessageSize — лимит входящих сообщений (клиенты только читают).
	maxMessageSize = 512
	// sendBuffer — размер очереди исходящих сообщений клиента.
	sendBuffer = 16
)

// SnapshotSource — источник снимков состояния таймеров.
type SnapshotSource interface {
	Snapshot() map[string]model.View
}

// client — одно websocket-подключение.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub — менеджер websocket-подключений push-канала.
type Hub struct {
	source   SnapshotSource
	clock    clockwork.Clock
	interval time.Duration
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}

	// notifyCh — сигнал о мутации; буфер 1 схлопывает серии уведомлений
	notifyCh chan struct{}
}

// NewHub создаёт hub. interval — период рассылки снимков,
// checkOrigin — проверка Origin при upgrade (nil — разрешены все).
func NewHub(
	source SnapshotSource,
	clock clockwork.Clock,
	interval time.Duration,
	checkOrigin func(r *http.Request) bool,
	logger *slog.Logger,
) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Hub{
		source:   source,
		clock:    clock,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:   logger.With(slog.String("component", "push_hub")),
		clients:  make(map[*client]struct{}),
		notifyCh: make(chan struct{}, 1),
	}
}

// Run рассылает снимки до отмены ctx, после чего закрывает все подключения.
func (h *Hub) Run(ctx context.Context) {
	ticker := h.clock.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info("Push-канал запущен", slog.Duration("interval", h.interval))

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("Push-канал остановлен")
			return
		case <-ticker.Chan():
			h.broadcast()
		case <-h.notifyCh:
			h.broadcast()
		}
	}
}

// Notify запрашивает внеочередную рассылку. Не блокирует.
func (h *Hub) Notify() {
	select {
	case h.notifyCh <- struct{}{}:
	default:
	}
}

// ClientCount возвращает количество подключённых клиентов.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP обрабатывает GET /ws/state: upgrade до websocket,
// отправка текущего снимка и регистрация клиента.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже записал ответ об ошибке
		h.logger.Warn("Ошибка websocket upgrade",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	payload, err := h.snapshotPayload()
	if err != nil {
		conn.Close()
		return
	}
	c.send <- payload

	h.register(c)

	go h.writePump(c)
	go h.readPump(c)

	h.logger.Debug("Клиент подключён",
		slog.String("client_id", c.id),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

// broadcast отправляет текущий снимок всем клиентам.
func (h *Hub) broadcast() {
	payload, err := h.snapshotPayload()
	if err != nil {
		return
	}

	var slow []*client

	// Отправка неблокирующая, поэтому выполняется под RLock:
	// unregister (Lock) не может закрыть канал во время отправки
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("Буфер клиента переполнен, отключение",
			slog.String("client_id", c.id),
		)
		h.unregister(c)
		c.conn.Close()
	}
}

// snapshotPayload сериализует снимок в формате ответа /api/state.
func (h *Hub) snapshotPayload() ([]byte, error) {
	payload, err := json.Marshal(model.State{Timers: h.source.Snapshot()})
	if err != nil {
		h.logger.Error("Ошибка сериализации снимка", slog.String("error", err.Error()))
		return nil, err
	}
	return payload, nil
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	middleware.PushClients.Set(float64(n))
}

// unregister удаляет клиента и закрывает его очередь. Повторный вызов безопасен.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	middleware.PushClients.Set(float64(n))
	h.logger.Debug("Клиент отключён", slog.String("client_id", c.id))
}

// closeAll отключает всех клиентов при остановке.
func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.unregister(c)
	}
}

// writePump пишет сообщения из очереди клиента и отправляет ping.
// Закрытая очередь — сигнал завершить подключение.
func (h *Hub) writePump(c *client) {
	ticker := h.clock.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		h.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("Ошибка записи в websocket",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
				return
			}

		case <-ticker.Chan():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump читает входящие кадры (pong, close). Содержимое сообщений
// клиентов игнорируется.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("Неожиданное закрытие websocket",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}
