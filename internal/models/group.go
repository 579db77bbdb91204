package models

import "time"

// StudyGroup is a chat room, optionally scoped to a catalog topic.
type StudyGroup struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	TopicID       *string   `db:"topic_id" json:"topic_id,omitempty"`
	TotalMessages int       `db:"total_messages" json:"total_messages"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`

	// MemberCount is populated on listing queries.
	MemberCount int `db:"member_count" json:"member_count"`
}

// GroupMessage is one chat message. PDFID references a shared catalog PDF.
type GroupMessage struct {
	ID        string    `db:"id" json:"id"`
	GroupID   string    `db:"group_id" json:"group_id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Message   string    `db:"message" json:"message"`
	PDFID     *string   `db:"pdf_id" json:"pdf_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	IsDeleted bool      `db:"is_deleted" json:"-"`
}

// SendMessageRequest posts a message into a group.
type SendMessageRequest struct {
	Message string  `json:"message" validate:"required,max=200"`
	PDFID   *string `json:"pdf_id" validate:"omitempty,uuid"`
}
