package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/hashstructure/v2"
)

const SystemSenderName = "System"

// Message is a line of text in a room, used for live delivery and for the durable history.
// A nil Recipients list addresses every occupant; Exclusions are removed in both cases.
type Message struct {
	Id         string    `json:"id" gorm:"primaryKey" hash:"ignore"`
	RoomId     string    `json:"room_id" gorm:"index"`
	SenderId   string    `json:"sender_id"` // empty for system messages
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Recipients IdList    `json:"recipients,omitempty"`
	Exclusions IdList    `json:"exclusions,omitempty"`
	Created    time.Time `json:"created" gorm:"index"`
	Transient  bool      `json:"-" gorm:"-" hash:"ignore"` // command responses are delivered but never stored
}

func NewMessage(roomId string, sender *User, lines ...string) *Message {
	msg := &Message{
		RoomId:     roomId,
		SenderName: SystemSenderName,
		Text:       strings.Join(lines, "\n"),
		Created:    time.Now().UTC(),
	}
	if sender != nil {
		msg.SenderId = sender.Id
		msg.SenderName = sender.Nick()
	}
	return msg
}

// CreateId sets the message id to a hash over its contents.
func (m *Message) CreateId() error {
	hash, err := hashstructure.Hash(m, hashstructure.FormatV2, nil)
	if err != nil {
		return err
	}
	m.Id = fmt.Sprintf("%d-%x", m.Created.UnixNano(), hash)
	return nil
}

// VisibleTo reports whether the message should be delivered to the given user.
func (m *Message) VisibleTo(userId string) bool {
	if m.Exclusions.Contains(userId) {
		return false
	}
	if m.Recipients == nil {
		return true
	}
	return m.Recipients.Contains(userId)
}
