package blocks

import (
	"fmt"

	"github.com/slack-go/slack"
)

func ExportNothingSelected() []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "☑️ Select at least one incident before exporting.", false, false),
			nil,
			nil,
		),
	}
}

func ExportUnavailable() []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "📝 Export is not configured. Set the Confluence settings to enable it.", false, false),
			nil,
			nil,
		),
	}
}

func ExportStarted(count int) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("⏳ Exporting %d incidents...", count), false, false),
			nil,
			nil,
		),
	}
}

// ExportSucceeded は要約があれば続けて表示する
func ExportSucceeded(count int, url, summary string) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("✅ Exported %d incidents: <%s|open report>", count, url), false, false),
			nil,
			nil,
		),
	}
	if s := Summary(summary); len(s) > 0 {
		blocks = append(blocks, slack.NewDividerBlock())
		blocks = append(blocks, s...)
	}
	return blocks
}

func ExportFailed(err error) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("🚨 Export failed: `%s`", errorText(err)), false, false),
			nil,
			nil,
		),
	}
}
