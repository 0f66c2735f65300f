package notification

import "fmt"

// Kind 通知类型，线上编码 0–5
type Kind int

const (
	KindFollowed Kind = iota
	KindUnfollowed
	KindChatRequest
	KindPostVoted
	KindRemovedFromFollowers
	KindPostCommented
)

const (
	ExtraRoomID = "room_id"
	ExtraPostID = "post_id"
)

// ParseKind 校验线上编码
func ParseKind(code int) (Kind, bool) {
	k := Kind(code)
	switch k {
	case KindFollowed, KindUnfollowed, KindChatRequest,
		KindPostVoted, KindRemovedFromFollowers, KindPostCommented:
		return k, true
	default:
		return 0, false
	}
}

func (k Kind) String() string {
	switch k {
	case KindFollowed:
		return "FOLLOWED"
	case KindUnfollowed:
		return "UNFOLLOWED"
	case KindChatRequest:
		return "CHAT_REQUEST"
	case KindPostVoted:
		return "POST_VOTED"
	case KindRemovedFromFollowers:
		return "REMOVED_FROM_FOLLOWERS"
	case KindPostCommented:
		return "POST_COMMENTED"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// requiredExtra 该类型必须携带的附加字段，没有返回空字符串
func (k Kind) requiredExtra() string {
	switch k {
	case KindChatRequest:
		return ExtraRoomID
	case KindPostCommented:
		return ExtraPostID
	default:
		return ""
	}
}

// message 通知文案
func (k Kind) message(actor string) string {
	switch k {
	case KindFollowed:
		return actor + " has followed you."
	case KindUnfollowed:
		return actor + " has unfollowed you."
	case KindChatRequest:
		return actor + " has sent you a private chat request."
	case KindPostVoted:
		return actor + " has voted your post."
	case KindRemovedFromFollowers:
		return actor + " has removed you from his/her followers list."
	case KindPostCommented:
		return actor + " has commented on your post."
	default:
		return ""
	}
}
