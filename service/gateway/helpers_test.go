package gateway

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"PPKitchen/service/topic"
	"PPKitchen/tools/errs"
	"PPKitchen/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu       sync.Mutex
	messages [][]byte
	controls []int
	closed   bool
	pingErr  error
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, data)
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if messageType == websocket.PingMessage && f.pingErr != nil {
		return f.pingErr
	}
	f.controls = append(f.controls, messageType)
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) count(messageType int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.controls {
		if c == messageType {
			n++
		}
	}
	return n
}

func newTestConn(id, user string, device DeviceClass) *Connection {
	return NewConnection(ConnectionInfo{
		ID:          id,
		Principal:   security.Principal{UserID: user, Role: security.RoleUser},
		DeviceClass: device,
		Variant:     GeneralVariant.Name,
		ConnectedAt: time.Unix(1700000000, 0),
	}, &fakeTransport{}, 8)
}

// drain returns the frames queued on c without blocking.
func drain(c *Connection) [][]byte {
	var out [][]byte
	for {
		select {
		case f := <-c.send:
			out = append(out, f)
		default:
			return out
		}
	}
}

// tokenVerifier accepts "tok-<user>" and "admin-<user>".
type tokenVerifier struct{}

func (tokenVerifier) Verify(ctx context.Context, token string) (security.Principal, error) {
	if err := ctx.Err(); err != nil {
		return security.Principal{}, err
	}
	switch {
	case strings.HasPrefix(token, "tok-"):
		return security.Principal{UserID: strings.TrimPrefix(token, "tok-"), Role: security.RoleUser}, nil
	case strings.HasPrefix(token, "admin-"):
		return security.Principal{UserID: strings.TrimPrefix(token, "admin-"), Role: security.RoleAdmin}, nil
	}
	return security.Principal{}, errs.New("bad token")
}

// denyPrivate refuses topics whose id starts with "private".
var denyPrivate = AuthorizerFunc(func(_ context.Context, _ security.Principal, t topic.Topic) (bool, error) {
	return !strings.HasPrefix(t.ID, "private"), nil
})

type testServer struct {
	g   *Gateway
	srv *httptest.Server
	url string
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	g := New(tokenVerifier{}, denyPrivate, opts)
	r := gin.New()
	g.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
		srv.Close()
	})
	return &testServer{g: g, srv: srv, url: "ws" + strings.TrimPrefix(srv.URL, "http")}
}

func (s *testServer) dial(t *testing.T, pathAndQuery string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(s.url+pathAndQuery, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// connect dials the general endpoint and consumes the connected frame.
func (s *testServer) connect(t *testing.T, user, device, deviceID string) (*websocket.Conn, ConnectedPayload) {
	t.Helper()
	ws := s.dial(t, "/ws?token=tok-"+user+"&deviceType="+device+"&deviceId="+deviceID)
	typ, payload := readFrame(t, ws)
	require.Equal(t, FrameConnected, typ)
	var cp ConnectedPayload
	require.NoError(t, json.Unmarshal(payload, &cp))
	return ws, cp
}

func readFrame(t *testing.T, ws *websocket.Conn) (string, json.RawMessage) {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	var f struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &f))
	return f.Type, f.Payload
}

func sendFrame(t *testing.T, ws *websocket.Conn, typ string, payload any) {
	t.Helper()
	require.NoError(t, ws.WriteJSON(map[string]any{"type": typ, "payload": payload}))
}

func readCloseCode(t *testing.T, ws *websocket.Conn) int {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.ErrorAs(t, err, &ce)
		return ce.Code
	}
}
