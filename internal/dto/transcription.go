package dto

import "time"

// TranscriptionResponse is the batch endpoint's success body.
type TranscriptionResponse struct {
	Transcript string `json:"transcript" example:"hello world"`
}

type SegmentResponse struct {
	ID        uint      `json:"id" example:"17"`
	SessionID string    `json:"session_id" example:"rly_5b0d7c1e-6f3a-4c55-9d1f-0b8d1c2f7a10"`
	OffsetMs  int64     `json:"offset_ms" example:"12500"`
	Text      string    `json:"text" example:"hello world"`
	CreatedAt time.Time `json:"created_at"`
}

type SegmentListResponse struct {
	SessionID string            `json:"session_id" example:"rly_5b0d7c1e-6f3a-4c55-9d1f-0b8d1c2f7a10"`
	Count     int64             `json:"count" example:"2"`
	Segments  []SegmentResponse `json:"segments"`
}
