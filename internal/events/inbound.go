package events

// Inbound event kinds.
const (
	JoinRoomKind            = "join_room"
	LeaveRoomKind           = "leave_room"
	SendMessageKind         = "send_message"
	TypingKind              = "typing"
	SeenMessageKind         = "seen_message"
	ReactionMessageKind     = "reaction_message"
	SendFriendRequestKind   = "send_friend_request"
	ChangeFriendRequestKind = "change_friend_request"
	ChatMessageKind         = "chat message"
)

// JoinRoomRequest adds the connection to a conversation room. A request of
// any kind below that misses a required field is rejected as a whole.
type JoinRoomRequest struct {
	RoomID ID `json:"roomID" validate:"required"`
}

// LeaveRoomRequest removes the connection from a conversation room.
type LeaveRoomRequest struct {
	RoomID ID `json:"roomID" validate:"required"`
}

// SendMessageRequest relays a chat message to a room, sender included.
type SendMessageRequest struct {
	RoomID    ID     `json:"roomID" validate:"required"`
	Content   string `json:"content" validate:"required"`
	SenderID  ID     `json:"senderID" validate:"required"`
	MessageID ID     `json:"messageID"`
}

// TypingRequest tells the other room members that someone is typing.
type TypingRequest struct {
	RoomID       ID `json:"roomID" validate:"required"`
	TypewriterID ID `json:"typewriterID" validate:"required"`
}

// SeenMessageRequest is a read receipt for the other room members.
type SeenMessageRequest struct {
	RoomID   ID     `json:"roomID" validate:"required"`
	ViewerID ID     `json:"viewerID" validate:"required"`
	Name     string `json:"name" validate:"required"`
	Avatar   string `json:"avatar" validate:"required"`
	SenderID ID     `json:"senderID" validate:"required"`
}

// ReactionRequest relays an emoji reaction on a message.
type ReactionRequest struct {
	ResponderID ID     `json:"responderID" validate:"required"`
	MessageID   ID     `json:"messageID" validate:"required"`
	Emoji       string `json:"emoji" validate:"required"`
	RoomID      ID     `json:"roomID" validate:"required"`
}

// FriendRequest notifies the receiver of a new friend request.
type FriendRequest struct {
	SenderID   ID `json:"senderID" validate:"required"`
	ReceiverID ID `json:"receiverID" validate:"required"`
}

// FriendRequestResponse notifies the original requester of an answer.
type FriendRequestResponse struct {
	SenderID   ID     `json:"senderID" validate:"required"`
	ReceiverID ID     `json:"receiverID" validate:"required"`
	Status     string `json:"status" validate:"required"`
	RoomID     ID     `json:"roomID" validate:"required"`
}
