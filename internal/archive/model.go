package archive

import "time"

// Segment is one final transcript fragment produced by a relay connection.
type Segment struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"not null;index:idx_segment_session" json:"session_id"`
	OffsetMs  int64     `gorm:"not null;default:0" json:"offset_ms"`
	Text      string    `gorm:"type:text;not null" json:"text"`
	CreatedAt time.Time `json:"created_at"`
}
