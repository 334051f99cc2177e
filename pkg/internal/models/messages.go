package models

import (
	"time"

	"gorm.io/datatypes"
)

type MessageType = string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeVoice    MessageType = "voice"
	MessageTypeLocation MessageType = "location"
	MessageTypePoll     MessageType = "poll"
	MessageTypeSystem   MessageType = "system"
	MessageTypeImage    MessageType = "image"
	MessageTypeVideo    MessageType = "video"
	MessageTypeAudio    MessageType = "audio"
	MessageTypeFile     MessageType = "file"
)

var MessageTypes = []MessageType{
	MessageTypeText, MessageTypeVoice, MessageTypeLocation,
	MessageTypePoll, MessageTypeSystem, MessageTypeImage,
	MessageTypeVideo, MessageTypeAudio, MessageTypeFile,
}

// Reactions maps an emoji to the set of user ids that reacted with it.
type Reactions = map[string][]string

type Message struct {
	BaseModel

	Uuid       string      `json:"uuid" gorm:"uniqueIndex"`
	VacationID string      `json:"vacation_id" gorm:"index"`
	UserID     string      `json:"user_id"`
	UserName   string      `json:"user_name"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Timestamp  time.Time   `json:"timestamp" gorm:"index"`
	EditedAt   *time.Time  `json:"edited_at,omitempty"`

	ReplyTo  *string `json:"reply_to,omitempty"`
	ThreadID *string `json:"thread_id,omitempty"`
	ParentID *string `json:"parent_id,omitempty"`

	Reactions   datatypes.JSONType[Reactions]          `json:"reactions"`
	Mentions    datatypes.JSONSlice[string]            `json:"mentions"`
	Attachments datatypes.JSONSlice[MessageAttachment] `json:"attachments"`

	Edited  bool `json:"edited"`
	Deleted bool `json:"deleted"`
	Pinned  bool `json:"pinned"`
}

type MessageAttachment struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Url       string  `json:"url"`
	Name      string  `json:"name"`
	Size      *int64  `json:"size,omitempty"`
	MimeType  *string `json:"mime_type,omitempty"`
	Thumbnail *string `json:"thumbnail,omitempty"`
	Duration  *int    `json:"duration,omitempty"`
	Width     *int    `json:"width,omitempty"`
	Height    *int    `json:"height,omitempty"`
}

// MessageFilter narrows a room's message history. Deleted messages stay
// hidden unless IncludeDeleted is set.
type MessageFilter struct {
	Types          []MessageType `json:"types,omitempty"`
	UserID         string        `json:"user_id,omitempty"`
	Since          *time.Time    `json:"since,omitempty"`
	Until          *time.Time    `json:"until,omitempty"`
	Keyword        string        `json:"keyword,omitempty"`
	HasAttachment  bool          `json:"has_attachment,omitempty"`
	AttachmentType string        `json:"attachment_type,omitempty"`
	HasReaction    bool          `json:"has_reaction,omitempty"`
	EditedOnly     bool          `json:"edited_only,omitempty"`
	PinnedOnly     bool          `json:"pinned_only,omitempty"`
	ThreadID       string        `json:"thread_id,omitempty"`
	IncludeDeleted bool          `json:"include_deleted,omitempty"`
}

type SearchQuery struct {
	Keyword        string `json:"keyword"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
	ContextSize    int    `json:"context_size,omitempty"`
	Limit          int    `json:"limit,omitempty"`
}

type SearchResult struct {
	Message       Message   `json:"message"`
	Score         float64   `json:"score"`
	MatchedFields []string  `json:"matched_fields"`
	Before        []Message `json:"before,omitempty"`
	After         []Message `json:"after,omitempty"`
}
