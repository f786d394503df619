package blocks_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/presentation/blocks"
	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestIncidentRow(t *testing.T) {
	row := incident.Row{
		Incident: entity.Incident{
			ID:           "42",
			IncidentType: "<script>",
			UserID:       strings.Repeat("u", 200),
			Platform:     "mail",
		},
		Severity:       entity.SeverityHigh,
		Badge:          entity.ActionBadge{Label: "Blocked", Tier: entity.BadgeDanger},
		When:           "7 декабря 2025 г. в 22:00:05",
		InvestigateURL: "http://kibana/app/discover",
		Selected:       true,
	}
	out := toJSON(t, blocks.IncidentRow(row))

	assert.Contains(t, out, "select:42")
	assert.Contains(t, out, "detail:42")
	assert.Contains(t, out, "Unselect")
	assert.Contains(t, out, "\\u0026lt;script\\u0026gt;")
	assert.NotContains(t, out, strings.Repeat("u", 100))
	assert.Contains(t, out, "Investigate")
}

func TestIncidentBoardSortButtons(t *testing.T) {
	out := toJSON(t, blocks.IncidentBoard(blocks.Board{
		Status: entity.Status{State: entity.PollSuccess, SucceededOnce: true},
		Sort:   entity.SortConfig{Key: entity.SortByUserID, Direction: entity.Descending},
	}))
	assert.Contains(t, out, blocks.SortActionPrefix+"timestamp")
	assert.Contains(t, out, blocks.SortActionPrefix+"incident_type")
	assert.Contains(t, out, "User ↓")
	assert.Contains(t, out, "sorted by user_id ↓")
	assert.Contains(t, out, blocks.ExportActionID)
	assert.Contains(t, out, "No incidents")
}

func TestIncidentBoardBlockLimit(t *testing.T) {
	rows := make([]incident.Row, 0, 100)
	for i := 0; i < 100; i++ {
		rows = append(rows, incident.Row{
			Incident: entity.Incident{ID: fmt.Sprint(i), IncidentType: "INN"},
			Severity: entity.SeverityHigh,
		})
	}

	tests := []struct {
		name   string
		rows   []incident.Row
		status entity.Status
		banner bool
		more   string
	}{
		{
			name:   "banner with overflow",
			rows:   rows,
			status: entity.Status{State: entity.PollFailure, SucceededOnce: true, Err: errors.New("503")},
			banner: true,
			more:   "and 56 more",
		},
		{
			name:   "no banner with overflow",
			rows:   rows,
			status: entity.Status{State: entity.PollSuccess, SucceededOnce: true},
			more:   "and 55 more",
		},
		{
			name:   "banner with exactly max rows",
			rows:   rows[:45],
			status: entity.Status{State: entity.PollFailure, SucceededOnce: true, Err: errors.New("503")},
			banner: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := blocks.IncidentBoard(blocks.Board{Rows: tt.rows, Status: tt.status, MaxRows: blocks.MaxBoardRows})
			assert.LessOrEqual(t, len(bs), blocks.MaxMessageBlocks)

			out := toJSON(t, bs)
			if tt.banner {
				assert.Contains(t, out, "Failed to refresh")
			}
			if tt.more != "" {
				assert.Contains(t, out, tt.more)
			} else {
				assert.NotContains(t, out, "more. Use")
			}
		})
	}
}

func TestFetchError(t *testing.T) {
	out := toJSON(t, blocks.FetchError(errors.New("dial tcp: connection refused")))
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, blocks.RefreshActionID)

	assert.Contains(t, toJSON(t, blocks.FetchError(nil)), "unknown error")
}

func TestIncidentDetailModal(t *testing.T) {
	extra := map[string]any{
		"pattern_matched": "\\d{12}",
		"is_encrypted":    false,
		"details":         map[string]any{"size": json.Number("12")},
		"note":            nil,
	}
	for i := 0; i < 10; i++ {
		extra[string(rune('a'+i))+"_field"] = "x"
	}
	row := incident.Row{
		Incident: entity.Incident{
			ID:           "7",
			Timestamp:    "2025-12-07T22:00:00Z",
			IncidentType: "ИНН",
			UserID:       "boris",
			Platform:     "telegram",
			Action:       "BLOCK",
			Extra:        extra,
		},
		Severity: entity.SeverityHigh,
		Badge:    entity.ActionBadge{Label: "Blocked", Tier: entity.BadgeDanger},
	}
	view := blocks.IncidentDetailModal(row, false)
	assert.Equal(t, slack.ViewType("modal"), view.Type)
	assert.Equal(t, "7", view.PrivateMetadata)

	sections := 0
	for _, b := range view.Blocks.BlockSet {
		if s, ok := b.(*slack.SectionBlock); ok && len(s.Fields) > 0 {
			assert.LessOrEqual(t, len(s.Fields), 10)
			sections++
		}
	}
	// 正規化6件 + 追加14件
	assert.Equal(t, 2, sections)

	out := toJSON(t, view)
	assert.Contains(t, out, "pattern_matched")
	assert.Contains(t, out, "false")
	assert.Contains(t, out, `{\"size\":12}`)
	assert.Contains(t, out, "null")
	// 正規化フィールドが先頭
	assert.Less(t, strings.Index(out, "*id*"), strings.Index(out, "*a_field*"))
	assert.NotContains(t, out, "investigate_button")
}

func TestSummary(t *testing.T) {
	assert.Nil(t, blocks.Summary("  "))

	summary := "Overall two leaks.\n### Findings\n- **mail** to external\n- usb copy\n### Actions\nBlock the sender"
	got := toJSON(t, blocks.Summary(summary))
	assert.Contains(t, got, "📊 Summary")
	assert.Contains(t, got, "Overall two leaks.")
	assert.Contains(t, got, "*Findings*")
	assert.Contains(t, got, "• *mail* to external")
	assert.Contains(t, got, "• usb copy")
	assert.Contains(t, got, "*Actions*")
	assert.Contains(t, got, "Block the sender")
}

func TestExportSucceededWithSummary(t *testing.T) {
	without := blocks.ExportSucceeded(2, "https://example.atlassian.net/wiki/x", "")
	assert.Len(t, without, 1)

	with := blocks.ExportSucceeded(2, "https://example.atlassian.net/wiki/x", "### Findings\n- one")
	assert.Greater(t, len(with), len(without))
	assert.Contains(t, toJSON(t, with), "open report")
}
