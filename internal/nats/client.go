package nats

import (
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/DurmazDev/microblog/internal/config"
)

const clientName = "microblog-gateway"

// Client 通知通道的 NATS 连接
// 首次连接失败时在后台重试，网关不因 NATS 不可用而无法启动
type Client struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewClient 连接 NATS
func NewClient(cfg config.NATSConfig, logger *slog.Logger) (*Client, error) {
	logger = logger.With("component", "nats")

	conn, err := nats.Connect(cfg.URL,
		nats.Name(clientName),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(10*time.Second),
		nats.ConnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS connected", "url", nc.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("NATS async error", "subject", subject, "error", err)
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, err
	}

	return &Client{conn: conn, logger: logger}, nil
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}

// Close 先 Drain，让已收到的通知处理完；失败时直接关闭
func (c *Client) Close() {
	if c.conn == nil || c.conn.IsClosed() {
		return
	}
	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("NATS drain failed", "error", err)
		c.conn.Close()
	}
}

// IsConnected 健康检查用
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}
