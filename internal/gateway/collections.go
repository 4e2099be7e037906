package gateway

// Collection names shared by the engines.
const (
	CollectionUsers         = "users"
	CollectionChannels      = "channels"
	CollectionRequests      = "membershipRequests"
	CollectionConversations = "conversations"
	CollectionCategories    = "categories"
)
