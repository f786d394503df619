package incident

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pyama86/dlpwatch/domain/entity"
)

// 身分証・金融識別子
var DefaultHighKeywords = []string{
	"инн", "inn", "снилс", "snils", "паспорт", "passport",
	"карт", "card", "счет", "счёт", "account", "iban",
}

// 連絡先
var DefaultMediumKeywords = []string{
	"email", "e-mail", "почт", "phone", "telephone", "телефон",
}

var actionBadges = map[string]entity.ActionBadge{
	entity.ActionBlock:      {Label: "Blocked", Tier: entity.BadgeDanger},
	entity.ActionMask:       {Label: "Masked", Tier: entity.BadgeWarning},
	entity.ActionAllow:      {Label: "Allowed", Tier: entity.BadgeSuccess},
	entity.ActionQuarantine: {Label: "Quarantined", Tier: entity.BadgeQuarantine},
	entity.ActionNotify:     {Label: "Notified", Tier: entity.BadgeInfo},
}

type tier struct {
	severity entity.Severity
	keywords []string
}

// Classifier は incident_type を大文字小文字を区別しない部分一致で重要度に分類する。
// キーワードは単語の先頭でのみ一致する (Beginner は inn に一致しない)
type Classifier struct {
	tiers []tier
}

// 空のリストはデフォルトのキーワードを使う
func NewClassifier(keywords entity.SeverityKeywords) *Classifier {
	high := keywords.High
	if len(high) == 0 {
		high = DefaultHighKeywords
	}
	medium := keywords.Medium
	if len(medium) == 0 {
		medium = DefaultMediumKeywords
	}
	return &Classifier{
		tiers: []tier{
			{severity: entity.SeverityHigh, keywords: lowerAll(high)},
			{severity: entity.SeverityMedium, keywords: lowerAll(medium)},
		},
	}
}

func DefaultClassifier() *Classifier {
	return NewClassifier(entity.SeverityKeywords{})
}

func (c *Classifier) SeverityOf(incidentType string) entity.Severity {
	t := strings.ToLower(strings.TrimSpace(incidentType))
	if t == "" {
		return entity.SeverityLow
	}
	for _, tr := range c.tiers {
		for _, kw := range tr.keywords {
			if containsWord(t, kw) {
				return tr.severity
			}
		}
	}
	return entity.SeverityLow
}

// ActionBadgeOf は未知のアクションをそのまま表示する
func ActionBadgeOf(action string) entity.ActionBadge {
	if b, ok := actionBadges[strings.ToUpper(strings.TrimSpace(action))]; ok {
		return b
	}
	return entity.ActionBadge{Label: action, Tier: entity.BadgeNeutral}
}

func lowerAll(words []string) []string {
	res := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			res = append(res, w)
		}
	}
	return res
}

// containsWord は kw が単語の先頭から始まる位置に含まれるかを返す。
// 語尾は問わないので карт は карта にも一致する
func containsWord(s, kw string) bool {
	for i := 0; i+len(kw) <= len(s); {
		j := strings.Index(s[i:], kw)
		if j < 0 {
			return false
		}
		at := i + j
		if at == 0 {
			return true
		}
		prev, _ := utf8.DecodeLastRuneInString(s[:at])
		if !unicode.IsLetter(prev) && !unicode.IsDigit(prev) {
			return true
		}
		_, size := utf8.DecodeRuneInString(s[at:])
		i = at + size
	}
	return false
}
