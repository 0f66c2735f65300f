package snowflake

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	nodeBits     = 10
	sequenceBits = 12

	MaxNodeID   = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	nodeShift      = sequenceBits
	timestampShift = nodeBits + sequenceBits
)

// ID 会话句柄 ID
type ID int64

// String 十进制字符串
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Node 返回生成该 ID 的节点号
func (id ID) Node() int64 {
	return (int64(id) >> nodeShift) & MaxNodeID
}

// Time 返回 ID 中的毫秒时间
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timestampShift) + epoch)
}

// Node 雪花 ID 生成器，每个网关实例一个
type Node struct {
	mu       sync.Mutex
	nodeID   int64
	sequence int64
	lastTime int64
	clock    func() int64
}

// NewNode 创建生成器，节点号必须在 [0, MaxNodeID] 内
func NewNode(nodeID int64) (*Node, error) {
	if nodeID < 0 || nodeID > MaxNodeID {
		return nil, fmt.Errorf("snowflake: node id %d out of range [0, %d]", nodeID, MaxNodeID)
	}
	return &Node{
		nodeID: nodeID,
		clock:  func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate 生成单调递增的 ID
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.clock()
	if now < n.lastTime {
		// 时钟回拨时沿用上次时间，靠序号保持递增
		now = n.lastTime
	}

	if now == n.lastTime {
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			// 序号用尽，等待下一毫秒
			for now <= n.lastTime {
				now = n.clock()
			}
		}
	} else {
		n.sequence = 0
	}

	n.lastTime = now

	return ID(((now - epoch) << timestampShift) |
		(n.nodeID << nodeShift) |
		n.sequence)
}
