package model

import (
	"strconv"
	"time"

	"gorm.io/gorm"
)

// User is the directory record the messaging core reads. Account creation and
// credentials live with the auth service; this side only owns presence and
// delivery related columns.
type User struct {
	gorm.Model
	Username    string     `gorm:"uniqueIndex;not null" json:"username"`
	Email       string     `gorm:"uniqueIndex;not null" json:"email"`
	Avatar      string     `json:"avatar"`
	Role        string     `json:"role"`
	PushToken   string     `json:"-"`
	PublicKey   string     `json:"publicKey"`
	E2EEEnabled bool       `gorm:"column:e2ee_enabled;not null;default:false" json:"e2eeEnabled"`
	LastSeen    *time.Time `json:"lastSeen"`
}

// StringID is the identifier used for rooms, presence and message references.
func (u *User) StringID() string {
	return FormatID(u.ID)
}

func (u *User) Profile() Profile {
	return Profile{
		ID:        u.StringID(),
		Username:  u.Username,
		Avatar:    u.Avatar,
		PublicKey: u.PublicKey,
	}
}

// Profile is the display subset joined onto messages and conversations.
type Profile struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Avatar    string `json:"avatar,omitempty"`
	PublicKey string `json:"publicKey,omitempty"`
}

// UserBlock records that UserID blocked BlockedID.
type UserBlock struct {
	UserID    uint `gorm:"primaryKey;autoIncrement:false"`
	BlockedID uint `gorm:"primaryKey;autoIncrement:false"`
	CreatedAt time.Time
}

func FormatID(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseID converts a string identifier back to the directory key. ok is false
// for anything that is not a positive integer.
func ParseID(id string) (uint, bool) {
	n, err := strconv.ParseUint(id, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return uint(n), true
}
