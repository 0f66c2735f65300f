package connection

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/DurmazDev/microblog/internal/errors"
)

func TestSession_BindAndState(t *testing.T) {
	s := newTestSession(t, newTestNode(t))
	assert.Equal(t, StateConnecting, s.State())

	s.Bind("u1", "alice", "tok")
	assert.Equal(t, StateAuthenticated, s.State())
	assert.Equal(t, "u1", s.UserID())
	assert.Equal(t, "alice", s.Name())
	assert.Equal(t, "tok", s.Token())

	s.MarkJoined()
	assert.Equal(t, StateJoinedRoom, s.State())

	s.Close()
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, "DISCONNECTED", s.State().String())

	// 断开后不会回到其他状态
	s.MarkJoined()
	assert.Equal(t, StateDisconnected, s.State())
}

func TestSession_Send(t *testing.T) {
	s := NewSession(newTestNode(t).Generate(), nil, Options{SendBufferSize: 2},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, s.Send([]byte("a")))
	require.NoError(t, s.Send([]byte("b")))

	err := s.Send([]byte("c"))
	assert.True(t, appErrors.Is(err, appErrors.ErrSendBufferFull))

	assert.Equal(t, []byte("a"), <-s.Outbox())
	require.NoError(t, s.Send([]byte("c")))
}

func TestSession_SendAfterClose(t *testing.T) {
	s := newTestSession(t, newTestNode(t))
	s.Close()
	s.Close()

	assert.ErrorIs(t, s.Send([]byte("a")), ErrSessionClosed)
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

// 服务端回显：读到的帧原样写回
func TestSession_Pumps(t *testing.T) {
	node := newTestNode(t)
	upgrader := websocket.Upgrader{}
	closed := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}

		s := NewSession(node.Generate(), conn, Options{RemoteAddr: r.RemoteAddr},
			slog.New(slog.NewTextHandler(io.Discard, nil)))
		go s.WritePump()

		_ = s.ReadPump(func(frame []byte) {
			_ = s.Send(frame)
		})
		s.Close()
		close(closed)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"event":"ping"}`)))

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"event":"ping"}`, string(got))

	client.Close()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not return after client close")
	}
}
