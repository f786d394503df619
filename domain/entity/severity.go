package entity

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// SeverityKeywords は重要度ごとの部分一致キーワード
type SeverityKeywords struct {
	High   []string `mapstructure:"high" validate:"dive,required"`
	Medium []string `mapstructure:"medium" validate:"dive,required"`
}

const (
	ActionBlock      = "BLOCK"
	ActionMask       = "MASK"
	ActionAllow      = "ALLOW"
	ActionQuarantine = "QUARANTINE"
	ActionNotify     = "NOTIFY"
)

type BadgeTier string

const (
	BadgeDanger     BadgeTier = "danger"
	BadgeWarning    BadgeTier = "warning"
	BadgeSuccess    BadgeTier = "success"
	BadgeQuarantine BadgeTier = "quarantine"
	BadgeInfo       BadgeTier = "info"
	BadgeNeutral    BadgeTier = "neutral"
)

type ActionBadge struct {
	Label string
	Tier  BadgeTier
}
