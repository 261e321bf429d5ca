package models

type ContainerKind string

const (
	KindChannel      ContainerKind = "channel"
	KindConversation ContainerKind = "conversation"
)

// Container addresses the scope a message belongs to: a channel (inside a
// server) or a direct-message conversation.
type Container struct {
	Kind ContainerKind
	ID   string
	// ServerID is only meaningful for channels. When set, the channel must
	// belong to that server.
	ServerID string
}

func ChannelContainer(serverID, channelID string) Container {
	return Container{Kind: KindChannel, ID: channelID, ServerID: serverID}
}

func ConversationContainer(conversationID string) Container {
	return Container{Kind: KindConversation, ID: conversationID}
}

// TopicKey is the live-channel event name new messages of the container are
// published under.
func (c Container) TopicKey() string { return TopicKey(c.ID) }

func TopicKey(containerID string) string {
	return "chat:" + containerID + ":messages"
}

// UpdateTopicKey carries edits of already delivered messages.
func UpdateTopicKey(containerID string) string {
	return TopicKey(containerID) + ":update"
}
