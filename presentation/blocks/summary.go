package blocks

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

var (
	summarySectionRe = regexp.MustCompile(`(?m)^### `)
	boldRe           = regexp.MustCompile(`\*\*(.*?)\*\*`)
)

// Summary はAIが作った要約をSlackブロックに変換する
func Summary(summary string) []slack.Block {
	if strings.TrimSpace(summary) == "" {
		return nil
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(
			slack.NewTextBlockObject("plain_text", "📊 Summary", false, false),
		),
	}

	// ### で始まる行で分割
	sections := summarySectionRe.Split(summary, -1)
	for i, section := range sections {
		lines := strings.Split(strings.TrimSpace(section), "\n")
		if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
			continue
		}

		// 見出しの前にある文章はそのまま本文として扱う
		if i == 0 {
			blocks = append(blocks, textSection(formatListItems(strings.Join(lines, "\n"))))
			continue
		}

		title := strings.TrimSpace(lines[0])
		blocks = append(blocks, textSection(fmt.Sprintf("*%s*", title)))

		if len(lines) > 1 {
			content := strings.TrimSpace(strings.Join(lines[1:], "\n"))
			if content != "" {
				blocks = append(blocks, textSection(formatListItems(content)))
			}
		}
	}

	return blocks
}

func textSection(text string) slack.Block {
	return slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", truncate(text, 3000), false, false),
		nil,
		nil,
	)
}

// リスト項目と太字を Slack 用に整形
func formatListItems(content string) string {
	lines := strings.Split(content, "\n")
	var formattedLines []string

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "- ") {
			line = "• " + strings.TrimPrefix(line, "- ")
		}

		line = boldRe.ReplaceAllString(line, "*$1*")

		formattedLines = append(formattedLines, line)
	}

	return strings.Join(formattedLines, "\n")
}
