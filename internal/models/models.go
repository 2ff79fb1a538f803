package models

import "time"

type User struct {
	ID          int64     `json:"id,string,omitempty"`
	Email       string    `json:"email,omitempty"`
	UserName    string    `json:"userName,omitempty"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio,omitempty"`
	Avatar      string    `json:"avatar,omitempty"`
	Password    []byte    `json:"password,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type Server struct {
	ID          int64     `json:"id,string"`
	OwnerID     int64     `json:"ownerID,string"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsPublic    bool      `json:"isPublic"`
	InviteCode  string    `json:"inviteCode,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CoarseRole is the legacy four-valued role tag on a membership row,
// layered under the custom role system.
type CoarseRole string

const (
	CoarseOwner     CoarseRole = "owner"
	CoarseAdmin     CoarseRole = "admin"
	CoarseModerator CoarseRole = "moderator"
	CoarseMember    CoarseRole = "member"
)

func (r CoarseRole) Valid() bool {
	switch r {
	case CoarseOwner, CoarseAdmin, CoarseModerator, CoarseMember:
		return true
	}
	return false
}

type ServerMember struct {
	ServerID int64      `json:"serverID,string"`
	UserID   int64      `json:"userID,string"`
	Nickname string     `json:"nickname,omitempty"`
	Role     CoarseRole `json:"role"`
	JoinedAt time.Time  `json:"joinedAt"`
	RoleIDs  []int64    `json:"roleIDs,omitempty"`
}

type ServerRole struct {
	ID             int64  `json:"id,string"`
	ServerID       int64  `json:"serverID,string"`
	Name           string `json:"name"`
	Color          string `json:"color"`
	Position       int    `json:"position"`
	IsDefault      bool   `json:"isDefault"`
	ManageChannels bool   `json:"manageChannels"`
	ManageServer   bool   `json:"manageServer"`
	ManageRoles    bool   `json:"manageRoles"`
	ManageMessages bool   `json:"manageMessages"`
	KickMembers    bool   `json:"kickMembers"`
	BanMembers     bool   `json:"banMembers"`
	CreateInvites  bool   `json:"createInvites"`
}

type ServerInvite struct {
	ID        int64      `json:"id,string"`
	ServerID  int64      `json:"serverID,string"`
	Code      string     `json:"code"`
	CreatedBy int64      `json:"createdBy,string"`
	MaxUses   int        `json:"maxUses"`
	Uses      int        `json:"uses"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

type Channel struct {
	ID        int64     `json:"id,string"`
	ServerID  int64     `json:"serverID,string"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// DMChannel pairs two users. UserLow is always the smaller ID so the
// unordered pair has exactly one row.
type DMChannel struct {
	ID            int64     `json:"id,string"`
	UserLow       int64     `json:"userLow,string"`
	UserHigh      int64     `json:"userHigh,string"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Message struct {
	ID          int64      `json:"id,string"`
	ChannelID   int64      `json:"channelID,string,omitempty"`
	DMChannelID int64      `json:"dmChannelID,string,omitempty"`
	UserID      int64      `json:"userID,string"`
	Content     string     `json:"content"`
	Edited      bool       `json:"edited"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	User        User       `json:"user,omitzero"`
}

type MessageReaction struct {
	MessageID int64     `json:"messageID,string"`
	UserID    int64     `json:"userID,string"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"createdAt"`
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

type FriendRequest struct {
	ID         int64         `json:"id,string"`
	SenderID   int64         `json:"senderID,string"`
	ReceiverID int64         `json:"receiverID,string"`
	Status     RequestStatus `json:"status"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

type NotificationType string

const (
	NotifyMessage       NotificationType = "message"
	NotifyMention       NotificationType = "mention"
	NotifyFriendRequest NotificationType = "friend_request"
	NotifyServerInvite  NotificationType = "server_invite"
	NotifyServerEvent   NotificationType = "server_event"
)

type Notification struct {
	ID        int64            `json:"id,string"`
	UserID    int64            `json:"userID,string"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

type ConfigFile struct {
	Address           string
	Port              string
	BehindNginx       bool
	TlsCert           string
	TlsKey            string
	PrintHttpRequests bool
	LogToFile         bool
	LogLevel          string
	JwtSecret         string
	SnowflakeWorkerID int64
	SelfContained     bool
	DbUser            string
	DbPassword        string
	DbAddress         string
	DbPort            string
	DbDatabase        string
	RedisAddress      string
	SmtpUsername      string
	SmtpPassword      string
	SmtpServer        string
	SmtpPort          int
}
