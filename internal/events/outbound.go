package events

import (
	"encoding/json"
	"time"
)

// Outbound event names.
const (
	UserOnlineName           = "user_online"
	UserOfflineName          = "user_offline"
	UserStatusName           = "user_status"
	ReceiveMessageName       = "receive_message"
	TypingName               = "typing"
	SeenMessageName          = "seen_message"
	ReceiveReactionName      = "receive_reaction_message"
	ReceiveFriendRequestName = "receive_friend_request"
	FriendRequestChangedName = "receive_noti_change_friend_request"
	ChatMessageName          = "chat message"
)

// UserOnline is broadcast when a user opens its first connection.
type UserOnline struct {
	UserID string `json:"userID"`
}

func (UserOnline) EventName() string { return UserOnlineName }

// UserOffline is broadcast when a user closes its last connection.
type UserOffline struct {
	UserID     string    `json:"userID"`
	LastActive time.Time `json:"last_active"`
}

func (UserOffline) EventName() string { return UserOfflineName }

// UserStatus is the legacy combined presence notification.
type UserStatus struct {
	UserID string `json:"userID"`
	Status string `json:"status"`
}

func (UserStatus) EventName() string { return UserStatusName }

// ReceiveMessage relays a chat message to a room.
type ReceiveMessage struct {
	RoomID    ID        `json:"roomID"`
	Content   string    `json:"content"`
	SenderID  ID        `json:"senderID"`
	MessageID ID        `json:"messageID,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (ReceiveMessage) EventName() string { return ReceiveMessageName }

// Typing tells room members that someone is typing.
type Typing struct {
	RoomID       ID `json:"roomID"`
	TypewriterID ID `json:"typewriterID"`
}

func (Typing) EventName() string { return TypingName }

// SeenMessage is a read receipt.
type SeenMessage struct {
	RoomID   ID     `json:"roomID"`
	ViewerID ID     `json:"viewerID"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	SenderID ID     `json:"senderID"`
}

func (SeenMessage) EventName() string { return SeenMessageName }

// ReceiveReaction relays an emoji reaction on a message.
type ReceiveReaction struct {
	ResponderID ID     `json:"responderID"`
	MessageID   ID     `json:"messageID"`
	Emoji       string `json:"emoji"`
	RoomID      ID     `json:"roomID"`
}

func (ReceiveReaction) EventName() string { return ReceiveReactionName }

// ReceiveFriendRequest notifies every device of the receiver.
type ReceiveFriendRequest struct {
	SenderID   ID `json:"senderID"`
	ReceiverID ID `json:"receiverID"`
}

func (ReceiveFriendRequest) EventName() string { return ReceiveFriendRequestName }

// FriendRequestChanged notifies the requester that a friend request was
// accepted or declined.
type FriendRequestChanged struct {
	SenderID   ID     `json:"senderID"`
	ReceiverID ID     `json:"receiverID"`
	Status     string `json:"status"`
	RoomID     ID     `json:"roomID"`
}

func (FriendRequestChanged) EventName() string { return FriendRequestChangedName }

// ChatMessage is the legacy global chat broadcast. Its payload is relayed
// verbatim.
type ChatMessage struct {
	Message json.RawMessage
}

func (ChatMessage) EventName() string { return ChatMessageName }

// MarshalJSON emits the raw message itself.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	if len(m.Message) == 0 {
		return []byte("null"), nil
	}
	return m.Message, nil
}
