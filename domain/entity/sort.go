package entity

import "fmt"

type SortKey string

const (
	SortByTimestamp    SortKey = "timestamp"
	SortByIncidentType SortKey = "incident_type"
	SortByUserID       SortKey = "user_id"
)

var SortKeys = []SortKey{SortByTimestamp, SortByIncidentType, SortByUserID}

func ParseSortKey(s string) (SortKey, error) {
	for _, k := range SortKeys {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

type SortConfig struct {
	Key       SortKey
	Direction Direction
}

func DefaultSortConfig() SortConfig {
	return SortConfig{Key: SortByTimestamp, Direction: Descending}
}

// Next は列見出しを押したときの次のソート設定を返す。
// 同じキーなら向きを反転し、別のキーなら昇順から始める。
func (c SortConfig) Next(key SortKey) SortConfig {
	if c.Key == key {
		if c.Direction == Ascending {
			return SortConfig{Key: key, Direction: Descending}
		}
		return SortConfig{Key: key, Direction: Ascending}
	}
	return SortConfig{Key: key, Direction: Ascending}
}
