package types

// Timestamps are UTC epoch milliseconds throughout. Conversion to a
// calendar day happens only against an explicit reference location,
// never by offset arithmetic on the stored value.

type User struct {
	Id           string `bson:"_id" json:"id"`
	Nickname     string `bson:"nickname" json:"nickname"`
	EmailAddress string `bson:"email" json:"email_address,omitempty"`
	Phone        string `bson:"phone" json:"phone,omitempty"`
	Avatar       string `bson:"avatar" json:"avatar,omitempty"`
	Role         string `bson:"role" json:"role"`
	PasswordHash string `bson:"passwordHash" json:"-"`
	CreatedAt    int64  `bson:"createdAt" json:"created_at,omitempty"`
}

// IsPrivileged reports whether the user may create channels and
// rename categories.
func (u User) IsPrivileged() bool { return u.Role == RoleAdmin }

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Profile is the cached user snapshot embedded in requests and
// conversation participants at the time they are created.
type Profile struct {
	Nickname string `bson:"nickname" json:"nickname"`
	Avatar   string `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
}

type PostType string

const (
	PostText  PostType = "text"
	PostImage PostType = "image"
	PostVideo PostType = "video"
)

type Post struct {
	Id        string   `bson:"id" json:"id"`
	ChannelId string   `bson:"channelId" json:"channel_id"`
	Type      PostType `bson:"type" json:"type"`
	Content   string   `bson:"content" json:"content"`
	Media     string   `bson:"media,omitempty" json:"media,omitempty"`
	Timestamp int64    `bson:"timestamp" json:"timestamp"`
	CreatorId string   `bson:"creatorId" json:"creator_id"`
	Hidden    bool     `bson:"-" json:"hidden,omitempty"`
}

// Channel is a broadcast feed owned by one creator. Posts, the member
// expiry table and the subscriber set are composed sub-objects with no
// independent lifecycle.
type Channel struct {
	Id               string           `bson:"_id" json:"id"`
	Name             string           `bson:"name" json:"name"`
	Description      string           `bson:"description" json:"description"`
	Category         string           `bson:"category" json:"category"`
	CreatorId        string           `bson:"creatorId" json:"creator_id"`
	CreatorName      string           `bson:"creatorName" json:"creator_name"`
	Avatar           string           `bson:"avatar,omitempty" json:"avatar,omitempty"`
	SubscriberCount  int              `bson:"subscriberCount" json:"subscriber_count"`
	Subscribers      []string         `bson:"subscribers" json:"subscribers"`
	MemberExpiry     map[string]int64 `bson:"memberExpiry" json:"member_expiry"`
	HideTodayContent bool             `bson:"hideTodayContent" json:"hide_today_content"`
	Posts            []Post           `bson:"posts" json:"posts"`
	CreatedAt        int64            `bson:"createdAt" json:"created_at"`
}

// IsSubscriber reports active membership. Expired members are removed
// by the sweep; a user still listed counts as active.
func (c *Channel) IsSubscriber(userId string) bool {
	for _, id := range c.Subscribers {
		if id == userId {
			return true
		}
	}
	return false
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// MembershipRequest is both the pending subscription request and the
// creator-facing inbox entry; the Read flag serves the inbox view.
// Resolved requests are deleted, so the terminal status is only ever
// seen on the value returned by the resolving operation.
type MembershipRequest struct {
	Id          string        `bson:"_id" json:"id"`
	ChannelId   string        `bson:"channelId" json:"channel_id"`
	ChannelName string        `bson:"channelName" json:"channel_name"`
	CreatorId   string        `bson:"creatorId" json:"creator_id"`
	UserId      string        `bson:"userId" json:"user_id"`
	User        Profile       `bson:"user" json:"user"`
	Status      RequestStatus `bson:"status" json:"status"`
	Read        bool          `bson:"read" json:"read"`
	RequestedAt int64         `bson:"requestedAt" json:"requested_at"`
	ResolvedAt  int64         `bson:"resolvedAt,omitempty" json:"resolved_at,omitempty"`
}

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
)

type Message struct {
	Id        string      `bson:"id" json:"id"`
	SenderId  string      `bson:"senderId" json:"sender_id"`
	Content   string      `bson:"content" json:"content"`
	Type      MessageType `bson:"type" json:"type"`
	Timestamp int64       `bson:"timestamp" json:"timestamp"`
	Read      bool        `bson:"read" json:"read"`
}

type Participant struct {
	Id       string `bson:"id" json:"id"`
	Nickname string `bson:"nickname" json:"nickname"`
	Avatar   string `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

// Conversation is a two-party thread. The id is derived from the
// participant pair, lexicographically smaller id first, so both call
// orders resolve to the same document.
type Conversation struct {
	Id              string         `bson:"_id" json:"id"`
	Participants    []Participant  `bson:"participants" json:"participants"`
	ParticipantIds  []string       `bson:"participantIds" json:"-"`
	Messages        []Message      `bson:"messages" json:"messages"`
	LastMessage     string         `bson:"lastMessage,omitempty" json:"last_message,omitempty"`
	LastMessageTime int64          `bson:"lastMessageTime" json:"last_message_time"`
	UnreadCount     map[string]int `bson:"unreadCount" json:"unread_count"`
	CreatedAt       int64          `bson:"createdAt" json:"created_at"`
}

// HasParticipant reports whether userId is one of the two parties.
func (c *Conversation) HasParticipant(userId string) bool {
	for _, p := range c.Participants {
		if p.Id == userId {
			return true
		}
	}
	return false
}

type Category struct {
	Id        string `bson:"_id" json:"id"`
	Name      string `bson:"name" json:"name"`
	Order     int    `bson:"order" json:"order"`
	IsDefault bool   `bson:"isDefault" json:"is_default"`
}
