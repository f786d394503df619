package blocks

import (
	"fmt"

	"github.com/slack-go/slack"
)

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return escape(truncate(err.Error(), 500))
}

func retryButton() slack.Block {
	return slack.NewActionBlock(
		"fetch_error_actions",
		slack.NewButtonBlockElement(
			RefreshActionID,
			"retry",
			slack.NewTextBlockObject("plain_text", "🔄 Retry", false, false),
		).WithStyle(slack.StyleDanger),
	)
}

// FetchError は一度も取得できていない時の全面エラー表示
func FetchError(err error) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(
				"mrkdwn",
				fmt.Sprintf("🚨 *Failed to load incidents*\n```%s```", errorText(err)),
				false,
				false,
			),
			nil,
			nil,
		),
		retryButton(),
	}
}

// ErrorBanner は前回のデータを表示したまま失敗を知らせる
func ErrorBanner(err error) []slack.Block {
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(
				"mrkdwn",
				fmt.Sprintf("⚠️ Failed to refresh, showing the last known data: `%s`", errorText(err)),
				false,
				false,
			),
			nil,
			slack.NewAccessory(
				slack.NewButtonBlockElement(
					RefreshActionID,
					"retry",
					slack.NewTextBlockObject("plain_text", "Retry", false, false),
				),
			),
		),
	}
}
