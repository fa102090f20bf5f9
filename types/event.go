package types

// Event is what travels through a room group: a message, a forced-close signal or a room info update.
type Event struct {
	Message  *Message // set for message events
	KickedId string   // set for kick events
	Info     *RoomInfo
}

// RoomInfo describes the live state of a room group.
type RoomInfo struct {
	RoomName    string
	Connections int
}

func NewMessageEvent(m *Message) *Event {
	return &Event{Message: m}
}

func NewKickEvent(userId string) *Event {
	return &Event{KickedId: userId}
}

func NewInfoEvent(roomName string, connections int) *Event {
	return &Event{Info: &RoomInfo{RoomName: roomName, Connections: connections}}
}

func (e *Event) IsKick() bool {
	return e.Message == nil && e.KickedId != ""
}
