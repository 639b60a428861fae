package domain

import (
	"time"

	"gorm.io/gorm"
)

// RoomModel is the GORM model for the chat_rooms table.
type RoomModel struct {
	ID            string `gorm:"type:varchar(36);primaryKey"`
	Name          string `gorm:"type:varchar(100);not null"`
	ReferenceID   string `gorm:"type:varchar(36);index;not null"`
	LastMessage   string `gorm:"type:text"`
	LastMessageAt time.Time
	Participants  []ParticipantModel `gorm:"foreignKey:RoomID"`
	CreatedAt     time.Time          `gorm:"autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime"`
	DeletedAt     gorm.DeletedAt     `gorm:"index"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "chat_rooms"
}

// ParticipantModel is the GORM model for per-room membership records.
// One row per (room, user); the pair is the primary key.
type ParticipantModel struct {
	RoomID               string `gorm:"type:varchar(36);primaryKey"`
	UserID               string `gorm:"type:varchar(36);primaryKey;index"`
	Connected            bool
	UnreadCount          int
	Leaved               bool
	WhenLeaved           *time.Time
	// No column default: GORM omits zero-valued fields that carry a
	// default tag from INSERTs, which would make the upsert in Save
	// resurrect notifications for users who toggled them off. Rows are
	// always written with the explicit domain value instead.
	NotificationsEnabled bool
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ParticipantModel.
func (ParticipantModel) TableName() string {
	return "chat_room_participants"
}

// UserModel is the GORM model for the users directory consulted when
// validating receivers.
type UserModel struct {
	ID        string `gorm:"type:varchar(36);primaryKey"`
	Username  string `gorm:"type:varchar(50);not null"`
	Email     string `gorm:"type:varchar(100);uniqueIndex"`
	CreatedAt time.Time
}

// TableName specifies the table name for UserModel.
func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts RoomModel to a domain Room.
func (m *RoomModel) ToDomain() *Room {
	participants := make(Participants, len(m.Participants))
	for i := range m.Participants {
		pm := &m.Participants[i]
		participants[pm.UserID] = &ParticipantInfo{
			UserID:               pm.UserID,
			Connected:            pm.Connected,
			UnreadCount:          pm.UnreadCount,
			Leaved:               pm.Leaved,
			WhenLeaved:           pm.WhenLeaved,
			NotificationsEnabled: pm.NotificationsEnabled,
		}
	}

	room := &Room{
		ID:            m.ID,
		Name:          m.Name,
		ReferenceID:   m.ReferenceID,
		Participants:  participants,
		LastMessage:   m.LastMessage,
		LastMessageAt: m.LastMessageAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.DeletedAt.Valid {
		t := m.DeletedAt.Time
		room.DeletedAt = &t
	}
	return room
}

// RoomToModel converts a domain Room to its GORM model.
func RoomToModel(r *Room) *RoomModel {
	model := &RoomModel{
		ID:            r.ID,
		Name:          r.Name,
		ReferenceID:   r.ReferenceID,
		LastMessage:   r.LastMessage,
		LastMessageAt: r.LastMessageAt,
		CreatedAt:     r.CreatedAt,
	}
	for _, p := range r.Participants {
		model.Participants = append(model.Participants, ParticipantModel{
			RoomID:               r.ID,
			UserID:               p.UserID,
			Connected:            p.Connected,
			UnreadCount:          p.UnreadCount,
			Leaved:               p.Leaved,
			WhenLeaved:           p.WhenLeaved,
			NotificationsEnabled: p.NotificationsEnabled,
		})
	}
	if r.DeletedAt != nil {
		model.DeletedAt = gorm.DeletedAt{Time: *r.DeletedAt, Valid: true}
	}
	return model
}
