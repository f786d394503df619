package model

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pyama86/dlpwatch/domain/entity"
)

// IncidentRecord はアーカイブ用に保存するインシデント
type IncidentRecord struct {
	Base
	Timestamp    string `json:"timestamp" dynamo:"timestamp"`
	IncidentType string `json:"incident_type" dynamo:"incident_type"`
	UserID       string `json:"user_id" dynamo:"user_id"`
	Platform     string `json:"platform" dynamo:"platform"`
	Action       string `json:"action" dynamo:"action"`
	Severity     string `json:"severity" dynamo:"severity"`
	// 上流の追加フィールドはJSON文字列として保持する
	Extra string `json:"extra" dynamo:"extra"`
}

func NewIncidentRecord(inc entity.Incident, severity entity.Severity, archivedAt time.Time) IncidentRecord {
	r := IncidentRecord{
		Base: Base{
			ID:         inc.ID,
			ArchivedAt: archivedAt,
		},
		Timestamp:    inc.Timestamp,
		IncidentType: inc.IncidentType,
		UserID:       inc.UserID,
		Platform:     inc.Platform,
		Action:       inc.Action,
		Severity:     string(severity),
	}
	if len(inc.Extra) > 0 {
		b, err := json.Marshal(inc.Extra)
		if err != nil {
			slog.Warn("failed to encode extra fields", slog.String("id", inc.ID), slog.Any("err", err))
		} else {
			r.Extra = string(b)
		}
	}
	return r
}

func (r IncidentRecord) Incident() entity.Incident {
	inc := entity.Incident{
		ID:           r.ID,
		Timestamp:    r.Timestamp,
		IncidentType: r.IncidentType,
		UserID:       r.UserID,
		Platform:     r.Platform,
		Action:       r.Action,
	}
	if r.Extra != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(r.Extra), &extra); err == nil {
			inc.Extra = extra
		}
	}
	return inc
}
