package blocks

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/slack-go/slack"
)

const DetailCallbackID = "incident_detail_modal"

// 正規化済みのフィールドは先頭に固定の順で表示する
var detailOrder = []string{
	entity.FieldID,
	entity.FieldTimestamp,
	entity.FieldIncidentType,
	entity.FieldUserID,
	entity.FieldPlatform,
	entity.FieldAction,
}

func IncidentDetail(row incident.Row, archived bool) []slack.Block {
	inc := row.Incident
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn",
				fmt.Sprintf("%s *%s*  (%s)\n%s %s\n%s",
					severityEmoji[row.Severity],
					escape(inc.IncidentType),
					row.Severity,
					badgeEmoji[row.Badge.Tier],
					escape(row.Badge.Label),
					row.When,
				),
				false, false),
			nil,
			nil,
		),
	}
	if archived {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", "🗄 This incident is no longer in the live list. Showing the archived record.", false, false),
		))
	}
	blocks = append(blocks, slack.NewDividerBlock())

	fields := inc.Fields()
	extra := make([]string, 0, len(fields))
	for k := range fields {
		if !slices.Contains(detailOrder, k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)

	var texts []*slack.TextBlockObject
	for _, k := range append(slices.Clone(detailOrder), extra...) {
		v, ok := fields[k]
		if !ok {
			continue
		}
		texts = append(texts, slack.NewTextBlockObject("mrkdwn",
			fmt.Sprintf("*%s*\n%s", escape(k), escape(truncate(displayValue(v), 500))),
			false, false))
	}
	// セクションのフィールドは最大10個
	for chunk := range slices.Chunk(texts, 10) {
		blocks = append(blocks, slack.NewSectionBlock(nil, chunk, nil))
	}

	if row.InvestigateURL != "" {
		blocks = append(blocks, slack.NewActionBlock("detail_actions",
			slack.NewButtonBlockElement(
				"investigate_button",
				inc.ID,
				slack.NewTextBlockObject("plain_text", "🔎 Investigate in Kibana", false, false),
			).WithURL(row.InvestigateURL),
		))
	}
	return blocks
}

func displayValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		if t == "" {
			return "(empty)"
		}
		return t
	case json.Number:
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
	return fmt.Sprint(v)
}

func IncidentDetailModal(row incident.Row, archived bool) slack.ModalViewRequest {
	return slack.ModalViewRequest{
		Type:       slack.ViewType("modal"),
		Title:      slack.NewTextBlockObject("plain_text", "Incident details", false, false),
		Close:      slack.NewTextBlockObject("plain_text", "Close", false, false),
		CallbackID: DetailCallbackID,
		Blocks: slack.Blocks{
			BlockSet: IncidentDetail(row, archived),
		},
		PrivateMetadata: row.Incident.ID,
	}
}
