package blocks

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/slack-go/slack"
)

const (
	SortActionPrefix   = "sort_button_"
	SelectAllActionID  = "select_all_button"
	RefreshActionID    = "refresh_button"
	ExportActionID     = "export_button"
	IncidentOverflowID = "incident_overflow"

	SelectValuePrefix = "select:"
	DetailValuePrefix = "detail:"

	// Slackの1メッセージあたりのブロック上限
	MaxMessageBlocks = 50
	MaxBoardRows     = 45
)

var severityEmoji = map[entity.Severity]string{
	entity.SeverityHigh:   "🔴",
	entity.SeverityMedium: "🟠",
	entity.SeverityLow:    "🟢",
}

var badgeEmoji = map[entity.BadgeTier]string{
	entity.BadgeDanger:     "⛔",
	entity.BadgeWarning:    "🟡",
	entity.BadgeSuccess:    "✅",
	entity.BadgeQuarantine: "🧪",
	entity.BadgeInfo:       "ℹ️",
	entity.BadgeNeutral:    "▫️",
}

var sortLabels = []struct {
	key   entity.SortKey
	label string
}{
	{entity.SortByTimestamp, "Time"},
	{entity.SortByIncidentType, "Type"},
	{entity.SortByUserID, "User"},
}

// Board はボードの描画に必要な状態
type Board struct {
	Rows      []incident.Row
	Status    entity.Status
	Sort      entity.SortConfig
	Selected  int
	MaxRows   int
	UpdatedAt string
}

func IncidentBoard(b Board) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "🛡 DLP incidents", false, false),
		),
	}

	// 一度も取得できていない場合はエラーだけを表示する
	if b.Status.FullScreenError() {
		return append(blocks, FetchError(b.Status.Err)...)
	}
	if !b.Status.SucceededOnce {
		return append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "⏳ Loading incidents...", false, false),
			nil,
			nil,
		))
	}

	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", boardSummary(b), false, false),
	))
	if b.Status.Banner() {
		blocks = append(blocks, ErrorBanner(b.Status.Err)...)
	}
	blocks = append(blocks, boardActions(b.Sort), slack.NewDividerBlock())

	if len(b.Rows) == 0 {
		return append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "No incidents 🎉", false, false),
			nil,
			nil,
		))
	}

	limit := rowLimit(b.MaxRows, len(b.Rows), MaxMessageBlocks-len(blocks))
	for _, row := range b.Rows[:limit] {
		blocks = append(blocks, IncidentRow(row))
	}
	if rest := len(b.Rows) - limit; rest > 0 {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("…and %d more. Use `dlpwatch list` for the full list.", rest), false, false),
		))
	}
	return blocks
}

// rowLimit は残りのブロック数に収まる行数を返す。省略する場合は「…and N more」の1ブロックを残す
func rowLimit(maxRows, rows, room int) int {
	if maxRows <= 0 || maxRows > MaxBoardRows {
		maxRows = MaxBoardRows
	}
	if rows <= maxRows && rows <= room {
		return rows
	}
	return max(0, min(maxRows, room-1))
}

func boardSummary(b Board) string {
	parts := []string{
		fmt.Sprintf("*%d* incidents", len(b.Rows)),
		fmt.Sprintf("sorted by %s %s", b.Sort.Key, arrow(b.Sort.Direction)),
	}
	if b.Selected > 0 {
		parts = append(parts, fmt.Sprintf("*%d* selected", b.Selected))
	}
	if b.Status.State == entity.PollLoading {
		parts = append(parts, "refreshing…")
	}
	if b.UpdatedAt != "" {
		parts = append(parts, "updated "+b.UpdatedAt)
	}
	return strings.Join(parts, " · ")
}

func arrow(d entity.Direction) string {
	if d == entity.Descending {
		return "↓"
	}
	return "↑"
}

func boardActions(sort entity.SortConfig) slack.Block {
	elements := []slack.BlockElement{}
	for _, s := range sortLabels {
		label := s.label
		if s.key == sort.Key {
			label = fmt.Sprintf("%s %s", label, arrow(sort.Direction))
		}
		btn := slack.NewButtonBlockElement(
			SortActionPrefix+string(s.key),
			string(s.key),
			slack.NewTextBlockObject("plain_text", label, false, false),
		)
		if s.key == sort.Key {
			btn = btn.WithStyle(slack.StylePrimary)
		}
		elements = append(elements, btn)
	}
	elements = append(elements,
		slack.NewButtonBlockElement(
			SelectAllActionID,
			"all",
			slack.NewTextBlockObject("plain_text", "☑️ Select all", false, false),
		),
		slack.NewButtonBlockElement(
			RefreshActionID,
			"refresh",
			slack.NewTextBlockObject("plain_text", "🔄 Refresh", false, false),
		),
		slack.NewButtonBlockElement(
			ExportActionID,
			"export",
			slack.NewTextBlockObject("plain_text", "📝 Export selected", false, false),
		),
	)
	return slack.NewActionBlock("board_actions", elements...)
}

// IncidentRow は1件分のセクション。操作はオーバーフローメニューにまとめる
func IncidentRow(row incident.Row) slack.Block {
	inc := row.Incident
	check := "☐"
	selectLabel := "Select"
	if row.Selected {
		check = "☑️"
		selectLabel = "Unselect"
	}

	text := fmt.Sprintf("%s %s *%s*  %s %s\n%s · %s · %s",
		check,
		severityEmoji[row.Severity],
		escape(truncate(inc.IncidentType, 80)),
		badgeEmoji[row.Badge.Tier],
		escape(truncate(row.Badge.Label, 40)),
		escape(truncate(inc.UserID, 80)),
		escape(truncate(inc.Platform, 40)),
		row.When,
	)
	if row.InvestigateURL != "" {
		text += fmt.Sprintf(" · <%s|Investigate>", row.InvestigateURL)
	}

	overflow := slack.NewOverflowBlockElement(
		IncidentOverflowID,
		slack.NewOptionBlockObject(
			SelectValuePrefix+inc.ID,
			slack.NewTextBlockObject("plain_text", selectLabel, false, false),
			nil,
		),
		slack.NewOptionBlockObject(
			DetailValuePrefix+inc.ID,
			slack.NewTextBlockObject("plain_text", "Details", false, false),
			nil,
		),
	)

	return slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", text, false, false),
		nil,
		slack.NewAccessory(overflow),
	)
}

// mrkdwn の制御文字をエスケープする
func escape(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
