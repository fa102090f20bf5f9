package ws

import "github.com/tcriess/lightspeed-rooms/types"

// accepts applies the recipient and exclusion lists of a message to the user of the client.
func (c *Client) accepts(message *types.Message) bool {
	if message == nil {
		return false
	}
	return message.VisibleTo(c.user.Id)
}

// closesOn reports whether a kick event targets this session. All other sessions of the room ignore it.
func (c *Client) closesOn(event *types.Event) bool {
	return event.IsKick() && event.KickedId == c.user.Id
}
