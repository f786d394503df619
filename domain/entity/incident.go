package entity

import (
	"encoding/json"
	"time"
)

const (
	FieldID           = "id"
	FieldTimestamp    = "timestamp"
	FieldIncidentType = "incident_type"
	FieldUserID       = "user_id"
	FieldPlatform     = "platform"
	FieldAction       = "action"
)

// 上流に値がない場合の既定値
const (
	DefaultIncidentType = "Unknown"
	DefaultUserID       = "N/A"
	DefaultPlatform     = "Unknown"
	DefaultAction       = ActionNotify
)

// Incident は正規化済みのインシデント1件
type Incident struct {
	ID           string         `json:"id"`
	Timestamp    string         `json:"timestamp"`
	IncidentType string         `json:"incident_type"`
	UserID       string         `json:"user_id"`
	Platform     string         `json:"platform"`
	Action       string         `json:"action"`
	Extra        map[string]any `json:"-"`
}

// Time は Timestamp を解析する。解析できなくてもエラーではなく ok が false になる
func (i Incident) Time() (time.Time, bool) {
	return ParseTimestamp(i.Timestamp)
}

// Fields は正規フィールドと上流の追加フィールドを1つのmapにまとめる
func (i Incident) Fields() map[string]any {
	m := make(map[string]any, len(i.Extra)+6)
	for k, v := range i.Extra {
		m[k] = v
	}
	m[FieldID] = i.ID
	m[FieldTimestamp] = i.Timestamp
	m[FieldIncidentType] = i.IncidentType
	m[FieldUserID] = i.UserID
	m[FieldPlatform] = i.Platform
	m[FieldAction] = i.Action
	return m
}

func (i Incident) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.Fields())
}

// 上流のタイムスタンプ表現。タイムゾーンなしはUTCとみなす
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
