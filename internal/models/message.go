package models

import (
	"fmt"
	"time"
)

// MaxMessageLength is the longest text a message may carry.
const MaxMessageLength = 140

// MaxFeedSize caps how many messages a home feed or profile page returns.
const MaxFeedSize = 100

// Message is a short text post ("warble") owned by a user.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Text      string    `gorm:"size:140;not null" json:"text"`
	Timestamp time.Time `gorm:"not null;autoCreateTime;index" json:"timestamp"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
	// LikesCount is not persisted; computed at query time
	LikesCount int64 `gorm:"->;-:migration" json:"likes_count"`
	// Liked indicates whether the current viewer liked this message (computed)
	Liked bool `gorm:"->;-:migration" json:"liked"`
}

// TableName specifies the table name for GORM
func (Message) TableName() string {
	return "messages"
}

func (m Message) String() string {
	return fmt.Sprintf("<Message #%d, Author ID:%d>", m.ID, m.UserID)
}
