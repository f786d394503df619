package report

import (
	"fmt"
	"strings"

	"github.com/pyama86/dlpwatch/domain/incident"
)

// Title はレポートのページタイトル。Confluenceではスペース内で一意である必要がある
func Title(createdAt string, count int) string {
	return fmt.Sprintf("DLP incident report %s (%d incidents)", createdAt, count)
}

func Render(title, createdAt, author, summary string, rows []incident.Row) string {
	if strings.TrimSpace(summary) == "" {
		summary = "_No summary._"
	}
	if author == "" {
		author = "unknown"
	}
	return fmt.Sprintf(`
# %s

## Created at

%s

## Author

%s

## Summary

%s

## Severity

%s

## Incidents

%s
`, title, createdAt, author, summary, severityTable(rows), incidentTable(rows))
}

func severityTable(rows []incident.Row) string {
	counts := map[string]int{}
	for _, r := range rows {
		counts[string(r.Severity)]++
	}
	var b strings.Builder
	b.WriteString("| severity | count |\n|---|---|\n")
	for _, s := range []string{"high", "medium", "low"} {
		b.WriteString(fmt.Sprintf("| %s | %d |\n", s, counts[s]))
	}
	return b.String()
}

func incidentTable(rows []incident.Row) string {
	var b strings.Builder
	b.WriteString("| time | type | severity | user | platform | action | id |\n|---|---|---|---|---|---|---|\n")
	for _, r := range rows {
		inc := r.Incident
		id := cell(inc.ID)
		if r.InvestigateURL != "" {
			id = fmt.Sprintf("[%s](%s)", id, r.InvestigateURL)
		}
		b.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s | %s | %s |\n",
			cell(r.When),
			cell(inc.IncidentType),
			r.Severity,
			cell(inc.UserID),
			cell(inc.Platform),
			cell(r.Badge.Label),
			id,
		))
	}
	return b.String()
}

// テーブルのセルを壊す文字を置き換える
func cell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ", "\r", " ").Replace(s)
}
