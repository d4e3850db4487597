// Package api contains the HTTP contract of the City Pulse insights API.
// Version v1 represents the current stable API version.
package api

import (
	"citypulse/pkg/contracts/domain"
)

// InsightRequest carries the query parameters accepted alongside an upload.
// Nil fields fall back to the server configuration.
type InsightRequest struct {
	MaxFillGap     *int  `json:"max_fill_gap,omitempty" query:"max_fill_gap" validate:"omitempty,min=0,max=100000"`
	TopN           *int  `json:"top_n,omitempty" query:"top_n" validate:"omitempty,min=1,max=24"`
	DropDuplicates *bool `json:"drop_duplicates,omitempty" query:"drop_duplicates"`
	Charts         bool  `json:"charts,omitempty" query:"charts"`
}

// InsightResponse is the success envelope for POST /api/insights
type InsightResponse struct {
	Status string                `json:"status"`
	Data   *domain.InsightReport `json:"data"`
}

// NewInsightResponse wraps a report in the success envelope
func NewInsightResponse(report *domain.InsightReport) InsightResponse {
	return InsightResponse{Status: "success", Data: report}
}

// HealthResponse is returned by the health endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version,omitempty"`
	Uptime    string            `json:"uptime,omitempty"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
