// ABOUTME: Activity envelope types for the chat platform wire format.
// ABOUTME: Decoded from inbound POST /api/messages and encoded for outbound sends.

package connector

// Activity kinds dispatched by the bridge. Inbound envelopes carry one of
// these in the type field.
const (
	ActivityMessage        = "message"
	ActivityMembersAdded   = "conversationUpdate"
	ActivityChannelCreated = "channelCreated"
)

// Account identifies a user or bot on the platform.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID               string `json:"id"`
	TenantID         string `json:"tenantId,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
}

// ChannelInfo describes a channel in channel-created updates.
type ChannelInfo struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// Activity is the platform-native envelope for inbound events and
// outbound messages.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	From         Account             `json:"from,omitempty"`
	Recipient    Account             `json:"recipient,omitempty"`
	Conversation ConversationAccount `json:"conversation,omitempty"`
	Text         string              `json:"text,omitempty"`
	TextFormat   string              `json:"textFormat,omitempty"`
	MembersAdded []Account           `json:"membersAdded,omitempty"`
	Channel      *ChannelInfo        `json:"channelData,omitempty"`
}

// ConversationRef is the routing information needed to deliver a message
// back into a specific conversation. It is captured from each inbound
// message activity and is opaque to the mailbox.
type ConversationRef struct {
	ActivityID   string
	ChannelID    string
	ServiceURL   string
	Conversation ConversationAccount
	Bot          Account
	User         Account
}

// RefFromActivity builds the conversation reference for an inbound
// message activity. The activity's recipient is the bot.
func RefFromActivity(act *Activity) *ConversationRef {
	return &ConversationRef{
		ActivityID:   act.ID,
		ChannelID:    act.ChannelID,
		ServiceURL:   act.ServiceURL,
		Conversation: act.Conversation,
		Bot:          act.Recipient,
		User:         act.From,
	}
}

// UserInfo is the resolved identity of a conversation participant.
type UserInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
