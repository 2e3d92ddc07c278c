package wire

// GraphQL documents. Values are always bound through variables, never
// interpolated into the document text.
const (
	ChannelIDQuery = `query($username: String!) { channel(username: $username) { id } }`
	UserIDQuery    = `query($username: String!) { user(username: $username) { id } }`

	ChatSubscription = `subscription($channelId: ID!) { chatMessage(channelId: $channelId) { user { id, username } message } }`

	CreateChatMessageMutation = `mutation($channelId: ID!, $message: ChatMessageInput!) { createChatMessage(channelId: $channelId, message: $message) { message } }`
	ShortTimeoutMutation      = `mutation($channelId: ID!, $userId: ID!) { shortTimeoutUser(channelId: $channelId, userId: $userId) { action, moderator { displayname } } }`
	LongTimeoutMutation       = `mutation($channelId: ID!, $userId: ID!) { longTimeoutUser(channelId: $channelId, userId: $userId) { action, moderator { displayname } } }`
	BanUserMutation           = `mutation($channelId: ID!, $userId: ID!) { banUser(channelId: $channelId, userId: $userId) { action, moderator { displayname } } }`
	UnbanUserMutation         = `mutation($channelId: ID!, $userId: ID!) { unbanUser(channelId: $channelId, userId: $userId) { action, moderator { displayname } } }`
)
