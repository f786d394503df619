package incident

import (
	"slices"

	"github.com/pyama86/dlpwatch/domain/entity"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// NewCollator は大文字小文字を区別しない照合器を返す。
// 未知のロケールは root の順序になる
func NewCollator(locale string) *collate.Collator {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Und
	}
	return collate.New(tag, collate.IgnoreCase)
}

// SortIncidents は並べ替えたコピーを返す。同順位はどちらの向きでも入力順のまま。
// 向きは比較結果の符号を反転するだけ
func SortIncidents(incidents []entity.Incident, cfg entity.SortConfig, c *collate.Collator) []entity.Incident {
	sorted := slices.Clone(incidents)
	cmp := comparator(cfg.Key, c)
	sign := 1
	if cfg.Direction == entity.Descending {
		sign = -1
	}
	slices.SortStableFunc(sorted, func(a, b entity.Incident) int {
		return sign * cmp(a, b)
	})
	return sorted
}

func comparator(key entity.SortKey, c *collate.Collator) func(a, b entity.Incident) int {
	switch key {
	case entity.SortByIncidentType:
		return func(a, b entity.Incident) int { return c.CompareString(a.IncidentType, b.IncidentType) }
	case entity.SortByUserID:
		return func(a, b entity.Incident) int { return c.CompareString(a.UserID, b.UserID) }
	}
	return compareTimestamp
}

// 解析できないタイムスタンプは最も古いものとして扱う
func compareTimestamp(a, b entity.Incident) int {
	ta, okA := a.Time()
	tb, okB := b.Time()
	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return -1
	case !okB:
		return 1
	}
	return ta.Compare(tb)
}
