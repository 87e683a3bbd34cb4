package dto

import "time"

type SessionResponse struct {
	ID           string     `json:"id" example:"rly_5b0d7c1e-6f3a-4c55-9d1f-0b8d1c2f7a10"`
	Encoding     string     `json:"encoding" example:"opus"`
	Language     string     `json:"language,omitempty" example:"en-US"`
	Status       string     `json:"status" example:"active"`
	StartedAt    time.Time  `json:"started_at"`
	LastActiveAt time.Time  `json:"last_active_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Finals       int64      `json:"finals" example:"42"`
	Interims     int64      `json:"interims" example:"310"`
	AudioBytes   int64      `json:"audio_bytes" example:"1048576"`
}

type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type MetricsResponse struct {
	Date          string `json:"date" example:"2024-01-15"`
	Hour          int    `json:"hour" example:"14"`
	Sessions      int64  `json:"sessions" example:"12"`
	Finals        int64  `json:"finals" example:"500"`
	Interims      int64  `json:"interims" example:"4200"`
	BatchRequests int64  `json:"batch_requests" example:"30"`
	Errors        int64  `json:"errors" example:"2"`
	AudioBytes    int64  `json:"audio_bytes" example:"52428800"`
}

type MetricsListResponse struct {
	Hours   int               `json:"hours" example:"24"`
	Metrics []MetricsResponse `json:"metrics"`
}

type SummaryResponse struct {
	Period        string  `json:"period" example:"7d"`
	TotalSessions int64   `json:"total_sessions" example:"80"`
	TotalFinals   int64   `json:"total_finals" example:"3500"`
	TotalBatch    int64   `json:"total_batch_requests" example:"120"`
	TotalErrors   int64   `json:"total_errors" example:"4"`
	AudioBytes    int64   `json:"audio_bytes" example:"734003200"`
	ErrorRate     float64 `json:"error_rate" example:"1.5"`
}
