package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/bigkaa/stagetimer/internal/domain/model"
)

// fakeSource — изменяемый источник снимков.
type fakeSource struct {
	mu    sync.Mutex
	views map[string]model.View
}

func (s *fakeSource) Snapshot() map[string]model.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.View, len(s.views))
	for k, v := range s.views {
		out[k] = v
	}
	return out
}

func (s *fakeSource) setLabel(id, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[id] = model.View{Label: label, DisplayRemaining: "00:00", Features: model.DefaultFeatures()}
}

// testHub поднимает hub за httptest.Server и запускает Run.
func testHub(t *testing.T) (*Hub, *fakeSource, *clockwork.FakeClock, string, context.CancelFunc) {
	t.Helper()

	source := &fakeSource{views: make(map[string]model.View)}
	source.setLabel("1", "Event 1")

	clock := clockwork.NewFakeClock()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(source, clock, time.Second, nil, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return hub, source, clock, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ошибка подключения к %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readState(t *testing.T, conn *websocket.Conn) model.State {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ошибка чтения сообщения: %v", err)
	}

	var state model.State
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatalf("некорректный JSON %s: %v", data, err)
	}
	return state
}

// waitFor ждёт выполнения условия не дольше 5 секунд.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestHub_InitialSnapshot(t *testing.T) {
	hub, _, _, url, _ := testHub(t)
	conn := dial(t, url)

	state := readState(t, conn)
	if got := state.Timers["1"].Label; got != "Event 1" {
		t.Errorf("ожидался снимок с Event 1, получено %+v", state)
	}

	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "клиент не зарегистрирован")
}

func TestHub_NotifyBroadcasts(t *testing.T) {
	hub, source, _, url, _ := testHub(t)
	first := dial(t, url)
	second := dial(t, url)
	readState(t, first)
	readState(t, second)
	waitFor(t, func() bool { return hub.ClientCount() == 2 }, "клиенты не зарегистрированы")

	source.setLabel("1", "Keynote")
	hub.Notify()

	for _, conn := range []*websocket.Conn{first, second} {
		if got := readState(t, conn).Timers["1"].Label; got != "Keynote" {
			t.Errorf("ожидалась рассылка нового названия, получено %q", got)
		}
	}
}

func TestHub_PeriodicPush(t *testing.T) {
	hub, source, clock, url, _ := testHub(t)
	conn := dial(t, url)
	readState(t, conn)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "клиент не зарегистрирован")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// ticker рассылки и ticker ping клиента
	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("ticker не создан: %v", err)
	}

	source.setLabel("2", "Event 2")
	clock.Advance(time.Second)

	if _, ok := readState(t, conn).Timers["2"]; !ok {
		t.Error("периодическая рассылка должна содержать актуальный снимок")
	}
}

func TestHub_PingOnClockTick(t *testing.T) {
	hub, _, clock, url, _ := testHub(t)
	conn := dial(t, url)
	readState(t, conn)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "клиент не зарегистрирован")

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		// Обработчики control-кадров вызываются из ReadMessage
		for {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := clock.BlockUntilContext(ctx, 2); err != nil {
		t.Fatalf("ticker не создан: %v", err)
	}

	select {
	case <-pinged:
		t.Fatal("ping не должен отправляться до истечения pingPeriod")
	case <-time.After(50 * time.Millisecond):
	}

	clock.Advance(pingPeriod)

	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
		t.Fatal("ping не получен после pingPeriod")
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, _, _, url, _ := testHub(t)
	conn := dial(t, url)
	readState(t, conn)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "клиент не зарегистрирован")

	conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "клиент не удалён после отключения")
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, _, _, url, cancel := testHub(t)
	conn := dial(t, url)
	readState(t, conn)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "клиент не зарегистрирован")

	cancel()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
				t.Errorf("ожидалось закрытие с кодом GoingAway, получено %v", err)
			}
			break
		}
	}

	if hub.ClientCount() != 0 {
		t.Errorf("после остановки клиентов быть не должно, осталось %d", hub.ClientCount())
	}
}

func TestHub_NotifyNonBlocking(t *testing.T) {
	source := &fakeSource{views: make(map[string]model.View)}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := NewHub(source, clockwork.NewFakeClock(), time.Second, nil, logger)

	done := make(chan struct{})
	go func() {
		// Run не запущен: уведомления схлопываются в буфер
		for i := 0; i < 100; i++ {
			hub.Notify()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify не должен блокироваться")
	}
}
