package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Tyrowin/gopresence/internal/events"
)

func (d *Dispatcher) joinRoom(s *session, payload json.RawMessage) error {
	req, err := decode[events.JoinRoomRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.Join(s.conn.ID(), events.RoomKey(req.RoomID))
	return nil
}

func (d *Dispatcher) leaveRoom(s *session, payload json.RawMessage) error {
	req, err := decode[events.LeaveRoomRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.Leave(s.conn.ID(), events.RoomKey(req.RoomID))
	return nil
}

// Message relay includes the sender.
func (d *Dispatcher) sendMessage(_ *session, payload json.RawMessage) error {
	req, err := decode[events.SendMessageRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.BroadcastToRoom(events.RoomKey(req.RoomID), events.ReceiveMessage{
		RoomID:    req.RoomID,
		Content:   req.Content,
		SenderID:  req.SenderID,
		MessageID: req.MessageID,
		Timestamp: d.now().UTC(),
	}, "")
	return nil
}

func (d *Dispatcher) typing(s *session, payload json.RawMessage) error {
	req, err := decode[events.TypingRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.BroadcastToRoom(events.RoomKey(req.RoomID), events.Typing{
		RoomID:       req.RoomID,
		TypewriterID: req.TypewriterID,
	}, s.conn.ID())
	return nil
}

func (d *Dispatcher) seenMessage(s *session, payload json.RawMessage) error {
	req, err := decode[events.SeenMessageRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.BroadcastToRoom(events.RoomKey(req.RoomID), events.SeenMessage{
		RoomID:   req.RoomID,
		ViewerID: req.ViewerID,
		Name:     req.Name,
		Avatar:   req.Avatar,
		SenderID: req.SenderID,
	}, s.conn.ID())
	return nil
}

func (d *Dispatcher) reaction(s *session, payload json.RawMessage) error {
	req, err := decode[events.ReactionRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.BroadcastToRoom(events.RoomKey(req.RoomID), events.ReceiveReaction{
		ResponderID: req.ResponderID,
		MessageID:   req.MessageID,
		Emoji:       req.Emoji,
		RoomID:      req.RoomID,
	}, s.conn.ID())
	return nil
}

func (d *Dispatcher) sendFriendRequest(_ *session, payload json.RawMessage) error {
	req, err := decode[events.FriendRequest](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.SendToUser(req.ReceiverID.String(), events.ReceiveFriendRequest{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
	})
	return nil
}

// The answer goes back to whoever sent the original request.
func (d *Dispatcher) changeFriendRequest(_ *session, payload json.RawMessage) error {
	req, err := decode[events.FriendRequestResponse](d.validate, payload)
	if err != nil {
		return err
	}
	d.engine.SendToUser(req.SenderID.String(), events.FriendRequestChanged{
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		Status:     req.Status,
		RoomID:     req.RoomID,
	})
	return nil
}

func (d *Dispatcher) chatMessage(_ *session, payload json.RawMessage) error {
	if events.IsBlank(payload) {
		return fmt.Errorf("%w: empty chat message", ErrMalformedEvent)
	}
	d.BroadcastChat(bytes.TrimSpace(payload))
	return nil
}
