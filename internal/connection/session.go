package connection

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	appErrors "github.com/DurmazDev/microblog/internal/errors"
	"github.com/DurmazDev/microblog/internal/snowflake"
)

var ErrSessionClosed = errors.New("session closed")

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// State 会话生命周期
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoinedRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateAuthenticated:
		return "AUTHENTICATED"
	case StateJoinedRoom:
		return "JOINED_ROOM"
	case StateDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Options 会话参数
type Options struct {
	RemoteAddr     string
	UserAgent      string
	SendBufferSize int
	MaxMessageSize int64
}

// Session 一条 WebSocket 连接，重连总是创建新的 Session
type Session struct {
	id         snowflake.ID
	conn       *websocket.Conn
	remoteAddr string
	userAgent  string
	maxMsgSize int64
	logger     *slog.Logger

	mu     sync.RWMutex
	userID string
	name   string
	token  string

	state      atomic.Int32
	writeChan  chan []byte
	closeChan  chan struct{}
	closeOnce  sync.Once
	createTime time.Time
}

// NewSession 创建会话，conn 为 nil 时只缓冲出站帧（测试使用）
func NewSession(id snowflake.ID, conn *websocket.Conn, opts Options, logger *slog.Logger) *Session {
	if opts.SendBufferSize <= 0 {
		opts.SendBufferSize = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 64 * 1024
	}

	s := &Session{
		id:         id,
		conn:       conn,
		remoteAddr: opts.RemoteAddr,
		userAgent:  opts.UserAgent,
		maxMsgSize: opts.MaxMessageSize,
		logger:     logger.With("session_id", id.String()),
		writeChan:  make(chan []byte, opts.SendBufferSize),
		closeChan:  make(chan struct{}),
		createTime: time.Now(),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

func (s *Session) ID() snowflake.ID {
	return s.id
}

func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

func (s *Session) UserAgent() string {
	return s.userAgent
}

func (s *Session) CreateTime() time.Time {
	return s.createTime
}

// Bind 绑定认证通过的身份，状态进入 AUTHENTICATED
func (s *Session) Bind(userID, name, token string) {
	s.mu.Lock()
	s.userID = userID
	s.name = name
	s.token = token
	s.mu.Unlock()

	s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated))
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// Token 握手时携带的 token，每个事件用它重新鉴权
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// MarkJoined 首次加入房间后进入 JOINED_ROOM
func (s *Session) MarkJoined() {
	s.state.CompareAndSwap(int32(StateAuthenticated), int32(StateJoinedRoom))
}

// Send 非阻塞写入发送队列，队列满时丢弃该帧
func (s *Session) Send(data []byte) error {
	select {
	case <-s.closeChan:
		return ErrSessionClosed
	default:
	}

	select {
	case s.writeChan <- data:
		return nil
	case <-s.closeChan:
		return ErrSessionClosed
	default:
		s.logger.Warn("Send buffer full, frame dropped", "user_id", s.UserID())
		return appErrors.ErrSendBufferFull
	}
}

// Outbox 发送队列，仅在没有 WritePump 时读取
func (s *Session) Outbox() <-chan []byte {
	return s.writeChan
}

// Close 标记断开并通知 WritePump 退出，可重复调用
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateDisconnected))
		close(s.closeChan)
	})
}

// Done 会话关闭后可读
func (s *Session) Done() <-chan struct{} {
	return s.closeChan
}

// ReadPump 读循环（阻塞），每帧处理完成后才读下一帧；连接出错时返回
func (s *Session) ReadPump(handle func(frame []byte)) error {
	s.conn.SetReadLimit(s.maxMsgSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Unexpected websocket close", "error", err)
			}
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(frame)
	}
}

// WritePump 写循环（阻塞），gorilla/websocket 同一时间只允许一个写者
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data := <-s.writeChan:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.logger.Debug("Failed to write frame", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.closeChan:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
