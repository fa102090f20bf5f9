package types

import (
	"encoding/json"
	"time"
)

const (
	WireEventTypeMessage = "message"
	WireEventTypeKick    = "kick"
	WireEventTypeInfo    = "info"

	// inbound
	MessageTypeChat = "chat"
)

// JSON-serialized WebsocketMessage is what the clients send via the Websocket connection
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ChatMessage is the payload of an inbound "chat" event. Message is either chat text or a command line.
type ChatMessage struct {
	Message string `json:"message" mapstructure:"message"`
}

// WireMessage is the outbound shape of a room message.
type WireMessage struct {
	Type         string    `json:"type"`
	Text         string    `json:"text"`
	SenderName   string    `json:"senderName"`
	RecipientIds []string  `json:"recipientIds,omitempty"`
	ExclusionIds []string  `json:"exclusionIds,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// WireKick tells every session of a room group that the session bound to TargetId has to close.
type WireKick struct {
	Type     string `json:"type"`
	TargetId string `json:"targetId"`
}

type WireInfo struct {
	Type        string `json:"type"`
	RoomName    string `json:"roomName"`
	Connections int    `json:"connections"`
}

func NewWireInfo(info *RoomInfo) WireInfo {
	return WireInfo{
		Type:        WireEventTypeInfo,
		RoomName:    info.RoomName,
		Connections: info.Connections,
	}
}

func NewWireMessage(m *Message) WireMessage {
	return WireMessage{
		Type:         WireEventTypeMessage,
		Text:         m.Text,
		SenderName:   m.SenderName,
		RecipientIds: m.Recipients,
		ExclusionIds: m.Exclusions,
		Timestamp:    m.Created,
	}
}
