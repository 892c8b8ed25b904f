package models

import (
	"encoding/json"
	"time"
)

// Result is a completed analysis as listed by GET /results.
type Result struct {
	ID                  string    `json:"id"`
	DealerID            string    `json:"dealer_id,omitempty"`
	ServiceAdvisor      string    `json:"citnow_service_advisor,omitempty"`
	URL                 string    `json:"citnow_url,omitempty"`
	OverallQualityScore *float64  `json:"overall_quality_score,omitempty"`
	OverallQualityLabel string    `json:"overall_quality_label,omitempty"`
	VideoQualityScore   *float64  `json:"video_quality_score,omitempty"`
	AudioQualityScore   *float64  `json:"audio_quality_score,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// UnmarshalJSON accepts both "id" and "_id".
func (r *Result) UnmarshalJSON(data []byte) error {
	type plain Result
	var aux struct {
		plain
		DocID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Result(aux.plain)
	if r.ID == "" {
		r.ID = aux.DocID
	}
	return nil
}

// ResultFilter narrows GET /results.
type ResultFilter struct {
	Limit    int
	DealerID string
}

// DealerSummary is one row of the super-admin overview.
type DealerSummary struct {
	DealerID          string  `json:"dealer_id"`
	TotalVideos       int     `json:"total_videos"`
	AvgOverallQuality float64 `json:"avg_overall_quality"`
}

// Overview is the body of GET /dashboard/super-admin/overview.
type Overview struct {
	TotalVideosAnalyzed   int             `json:"total_videos_analyzed"`
	AverageOverallQuality float64         `json:"average_overall_quality"`
	DealersSummary        []DealerSummary `json:"dealers_summary"`
	QualityDistribution   map[string]int  `json:"quality_distribution"`
}

// UserStat is one row of GET /dashboard/dealer/{id}/user-stats.
type UserStat struct {
	UserID            string  `json:"user_id"`
	Username          string  `json:"username"`
	TotalVideos       int     `json:"total_videos"`
	AvgOverallQuality float64 `json:"avg_overall_quality"`
}

// DecodeList decodes either a bare JSON array or an object wrapping the array under key.
func DecodeList[T any](data []byte, key string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	raw, ok := wrapped[key]
	if !ok {
		return []T{}, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, err
	}
	return list, nil
}
