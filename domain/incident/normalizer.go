package incident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pyama86/dlpwatch/domain/entity"
)

// レスポンスが配列を包んでいる場合のキー。先頭から順に探す
var wrapperKeys = []string{"incidents", "data", "results"}

type fieldRule struct {
	field      string
	candidates []string
	fallback   func(n *Normalizer) string
}

// 正規化フィールドごとの候補名。先に値が入っているものを採用する
var fieldRules = []fieldRule{
	{
		field:      entity.FieldID,
		candidates: []string{"id", "_id"},
		fallback:   func(n *Normalizer) string { return n.newID() },
	},
	{
		field:      entity.FieldTimestamp,
		candidates: []string{"timestamp", "date", "created_at"},
		fallback:   func(n *Normalizer) string { return n.now().UTC().Format(time.RFC3339) },
	},
	{
		field:      entity.FieldIncidentType,
		candidates: []string{"incident_type", "type", "category"},
		fallback:   constant(entity.DefaultIncidentType),
	},
	{
		field:      entity.FieldUserID,
		candidates: []string{"user_id", "user", "employee_id"},
		fallback:   constant(entity.DefaultUserID),
	},
	{
		field:      entity.FieldPlatform,
		candidates: []string{"platform", "source", "channel"},
		fallback:   constant(entity.DefaultPlatform),
	},
	{
		field:      entity.FieldAction,
		candidates: []string{"action", "response"},
		fallback:   constant(entity.DefaultAction),
	},
}

var canonicalFields = map[string]struct{}{
	entity.FieldID:           {},
	entity.FieldTimestamp:    {},
	entity.FieldIncidentType: {},
	entity.FieldUserID:       {},
	entity.FieldPlatform:     {},
	entity.FieldAction:       {},
}

func constant(v string) func(*Normalizer) string {
	return func(*Normalizer) string { return v }
}

type NormalizerOption func(*Normalizer)

func WithClock(now func() time.Time) NormalizerOption {
	return func(n *Normalizer) { n.now = now }
}

func WithIDGenerator(gen func() string) NormalizerOption {
	return func(n *Normalizer) { n.newID = gen }
}

// Normalizer はAPIがどんな形で返しても正規化したインシデントに変換する。
// 壊れたエントリでは失敗せず、デフォルト値で埋めるか読み飛ばす
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

func NewNormalizer(opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// DecodePayload はAPIのボディをデコードする。数値は json.Number のまま残し、空のボディは0件として扱う
func DecodePayload(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return []any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode incidents payload: %w", err)
	}
	return payload, nil
}

func (n *Normalizer) Normalize(payload any) []entity.Incident {
	entries := extractEntries(payload)
	incidents := make([]entity.Incident, 0, len(entries))
	index := make(map[string]int, len(entries))
	for _, e := range entries {
		raw, ok := e.(map[string]any)
		if !ok {
			continue
		}
		inc := n.normalizeEntry(raw)
		// 同じIDは後勝ち。位置は先に出現したものを維持する
		if i, dup := index[inc.ID]; dup {
			incidents[i] = inc
			continue
		}
		index[inc.ID] = len(incidents)
		incidents = append(incidents, inc)
	}
	return incidents
}

func (n *Normalizer) normalizeEntry(raw map[string]any) entity.Incident {
	values := make(map[string]string, len(fieldRules))
	for _, rule := range fieldRules {
		values[rule.field] = resolve(raw, rule.candidates, func() string { return rule.fallback(n) })
	}

	var extra map[string]any
	for k, v := range raw {
		if _, ok := canonicalFields[k]; ok {
			continue
		}
		if extra == nil {
			extra = make(map[string]any)
		}
		extra[k] = v
	}

	return entity.Incident{
		ID:           values[entity.FieldID],
		Timestamp:    values[entity.FieldTimestamp],
		IncidentType: values[entity.FieldIncidentType],
		UserID:       values[entity.FieldUserID],
		Platform:     values[entity.FieldPlatform],
		Action:       values[entity.FieldAction],
		Extra:        extra,
	}
}

func resolve(raw map[string]any, candidates []string, fallback func() string) string {
	for _, name := range candidates {
		if s, ok := scalarString(raw[name]); ok {
			return s
		}
	}
	return fallback()
}

// scalarString はJSONのスカラーを文字列にする。nil と空文字、オブジェクト、配列は値なし扱い
func scalarString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case int32:
		s = strconv.FormatInt(int64(t), 10)
	case uint64:
		s = strconv.FormatUint(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return "", false
	}
	return s, s != ""
}

func extractEntries(payload any) []any {
	switch p := payload.(type) {
	case []any:
		return p
	case []map[string]any:
		entries := make([]any, len(p))
		for i := range p {
			entries[i] = p[i]
		}
		return entries
	case map[string]any:
		for _, key := range wrapperKeys {
			if arr, ok := p[key].([]any); ok {
				return arr
			}
		}
		// 未知の形はオブジェクト自身の値を配列とみなす
		keys := make([]string, 0, len(p))
		for k := range p {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		entries := make([]any, 0, len(keys))
		for _, k := range keys {
			entries = append(entries, p[k])
		}
		return entries
	}
	return nil
}
