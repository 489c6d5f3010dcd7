// mopchan/models/models.go
package models

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Core Data Models ---

type Thread struct {
	ID            int64        `json:"id"`
	Subject       string       `json:"subject,omitempty"`
	Content       string       `json:"content"`
	Name          string       `json:"name"`
	Tripcode      string       `json:"tripcode,omitempty"`
	IsAdmin       bool         `json:"isAdmin,omitempty"`
	ImagePath     string       `json:"imagePath,omitempty"`
	ThumbnailPath string       `json:"thumbnailPath,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
	BumpedAt      time.Time    `json:"bumpedAt"`
	ReplyCount    int          `json:"replyCount"`
	ImageCount    int          `json:"imageCount"`
	Pinned        bool         `json:"pinned"`
	PinnedAt      sql.NullTime `json:"-"`

	// Retained for moderation only. Never serialized to public readers.
	IP string `json:"-"`

	Posts []Post `json:"posts,omitempty"`
}

type Post struct {
	ID            int64     `json:"id"`
	ThreadID      int64     `json:"threadId"`
	Content       string    `json:"content"`
	Name          string    `json:"name"`
	Tripcode      string    `json:"tripcode,omitempty"`
	IsAdmin       bool      `json:"isAdmin,omitempty"`
	ImagePath     string    `json:"imagePath,omitempty"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty"`
	Sage          bool      `json:"sage,omitempty"`
	Timestamp     time.Time `json:"timestamp"`

	IP string `json:"-"`
}

// ThreadInput carries validated user input into the thread store.
type ThreadInput struct {
	Subject       string
	Content       string
	Name          string
	Tripcode      string
	IsAdmin       bool
	ImagePath     string
	ThumbnailPath string
	ImageHash     string
	IP            string
}

// PostInput carries validated user input into the post store.
type PostInput struct {
	Content       string
	Name          string
	Tripcode      string
	IsAdmin       bool
	Sage          bool
	ImagePath     string
	ThumbnailPath string
	ImageHash     string
	IP            string
}

// --- Moderation Models ---

type Ban struct {
	IP        string       `json:"ip"`
	Reason    string       `json:"reason"`
	BannedBy  string       `json:"bannedBy"`
	CreatedAt time.Time    `json:"createdAt"`
	ExpiresAt sql.NullTime `json:"-"`
}

// Active reports whether the ban is still in force at time now.
func (b Ban) Active(now time.Time) bool {
	return !b.ExpiresAt.Valid || b.ExpiresAt.Time.After(now)
}

type Pin struct {
	ThreadID int64     `json:"threadId"`
	PinnedBy string    `json:"pinnedBy"`
	PinnedAt time.Time `json:"pinnedAt"`
}

type Admin struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         Role
}

type ModAction struct {
	ID        int64
	Timestamp time.Time
	Moderator string
	Action    string
	TargetID  sql.NullInt64
	Details   sql.NullString
}

// --- Chat ---

// ChatMessage is ephemeral relative to the forum data. The ID is assigned
// server-side and is the de-duplication key for clients.
type ChatMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tripcode  string    `json:"tripcode,omitempty"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// --- Roles ---

// Role is the admin privilege level checked by the moderation gate.
type Role int

const (
	RoleUser Role = iota
	RoleModerator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleModerator:
		return "moderator"
	case RoleAdmin:
		return "admin"
	default:
		return "user"
	}
}

// ParseRole converts a stored role string back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "user":
		return RoleUser, nil
	case "moderator":
		return RoleModerator, nil
	case "admin":
		return RoleAdmin, nil
	}
	return RoleUser, fmt.Errorf("unknown role %q", s)
}

// AtLeast reports whether r grants the privileges of min.
func (r Role) AtLeast(min Role) bool {
	return r >= min
}
