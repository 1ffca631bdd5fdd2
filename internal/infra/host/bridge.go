package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"swap_calc/internal/domain"
	"swap_calc/internal/infra"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	maxRetries       = 10
	handshakeTimeout = 10 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 5 * time.Second
)

// Bridge is the websocket link to the container hosting the mini-app.
// It receives the launch parameters and forwards close requests.
type Bridge struct {
	url      string
	logger   *slog.Logger
	launches chan domain.OrderIdentity

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	initData  string
	launched  bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a bridge for the host at url (ws:// or wss://).
func NewBridge(url string, logger *slog.Logger) *Bridge {
	return &Bridge{
		url:      url,
		logger:   infra.Module(logger, "host"),
		launches: make(chan domain.OrderIdentity, 1),
	}
}

// Launches delivers the first launch message. Later ones only refresh the
// init data.
func (b *Bridge) Launches() <-chan domain.OrderIdentity {
	return b.launches
}

// Connect starts the connection loop in the background.
func (b *Bridge) Connect(ctx context.Context) error {
	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.connectionLoop(ctx)
	return nil
}

func (b *Bridge) connectionLoop(ctx context.Context) {
	defer b.wg.Done()
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := b.connect(ctx); err != nil {
			b.logger.Warn("Host connection failed", slog.Any("error", err), slog.Int("retry", retryCount))
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > maxRetries {
				retryCount = 0
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		} else {
			retryCount = 0
			b.readLoop(ctx)
		}
	}
}

func (b *Bridge) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := make(http.Header)
	header.Set("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, b.url, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	b.mu.Lock()
	b.conn = conn
	b.connected = true
	b.mu.Unlock()

	b.logger.Info("Host connected", slog.String("url", b.url))
	return nil
}

func (b *Bridge) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.mu.RLock()
		conn := b.conn
		b.mu.RUnlock()
		if conn == nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			b.logger.Debug("Host read ended", slog.Any("error", err))
			b.closeConnection()
			return
		}
		b.handleMessage(msg)
	}
}

func (b *Bridge) handleMessage(msg []byte) {
	var in inboundMessage
	if json.Unmarshal(msg, &in) != nil || in.Type != msgLaunch {
		return
	}

	b.mu.Lock()
	b.initData = in.InitData
	first := !b.launched
	b.launched = true
	b.mu.Unlock()

	if !first {
		b.logger.Debug("Repeated launch ignored", slog.String("order_id", in.OrderID))
		return
	}

	id := domain.OrderIdentity{OrderID: in.OrderID, MethodID: in.MethodID, InitData: in.InitData}
	b.logger.Info("Launch received",
		slog.String("order_id", id.OrderID),
		slog.String("method_id", id.MethodID),
		slog.Int("init_data_len", len(id.InitData)),
	)
	select {
	case b.launches <- id:
	default: // DROP
	}
}

// InitData returns the token from the last launch message, or "".
func (b *Bridge) InitData() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initData
}

// Connected reports whether the host link is up.
func (b *Bridge) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// CloseWindow asks the host to dismiss the mini-app.
func (b *Bridge) CloseWindow() error {
	req := closeRequest{Type: msgClose, ID: uuid.NewString()}
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := b.threadSafeWrite(websocket.TextMessage, data); err != nil {
		return err
	}
	b.logger.Info("Close requested", slog.String("id", req.ID))
	return nil
}

func (b *Bridge) threadSafeWrite(msgType int, data []byte) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.conn == nil || !b.connected {
		return domain.ErrHostUnavailable
	}
	b.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := b.conn.WriteMessage(msgType, data); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrHostUnavailable, err)
	}
	return nil
}

func (b *Bridge) closeConnection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		b.conn.Close()
		b.conn = nil
	}
	b.connected = false
}

// Disconnect stops the connection loop and waits for it to exit.
func (b *Bridge) Disconnect() {
	if b.cancel != nil {
		b.cancel()
	}
	b.closeConnection()
	b.wg.Wait()
}
