package incident_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeFormatter(t *testing.T) {
	ts := "2025-12-07T22:00:05Z"
	tests := []struct {
		locale   string
		timezone string
		input    string
		want     string
	}{
		{"ru-RU", "UTC", ts, "7 декабря 2025 г. в 22:00:05"},
		{"ru-RU", "Europe/Moscow", ts, "8 декабря 2025 г. в 01:00:05"},
		{"en-US", "UTC", ts, "December 7, 2025 at 10:00:05 PM"},
		{"de", "UTC", ts, "7. Dezember 2025 um 22:00:05"},
		{"fr-FR", "UTC", ts, "7 décembre 2025 à 22:00:05"},
		{"ja-JP", "Asia/Tokyo", ts, "2025年12月8日 07:00:05"},
		{"xx-invalid-", "UTC", ts, "2025-12-07 22:00:05"},
		{"ru-RU", "No/Such_Zone", ts, "7 декабря 2025 г. в 22:00:05"},
		{"ru-RU", "UTC", "yesterday", incident.InvalidDateLabel},
		{"en-US", "UTC", "", incident.InvalidDateLabel},
	}
	for _, tt := range tests {
		t.Run(tt.locale+"/"+tt.input, func(t *testing.T) {
			f := incident.NewTimeFormatter(tt.locale, tt.timezone)
			assert.Equal(t, tt.want, f.Format(tt.input))
		})
	}
}

func TestInvestigateURL(t *testing.T) {
	l := incident.NewLinker("https://kibana.example.com/", "")
	u := l.InvestigateURL("abc'1")
	require.True(t, strings.HasPrefix(u, "https://kibana.example.com/app/discover#/?_a="))

	state, err := url.QueryUnescape(strings.TrimPrefix(u, "https://kibana.example.com/app/discover#/?_a="))
	require.NoError(t, err)
	assert.Equal(t, `(query:(language:kuery,query:'incident_id:"abc!'1"'))`, state)

	assert.Empty(t, incident.NewLinker("", "").InvestigateURL("abc"))
	var nilLinker *incident.Linker
	assert.Empty(t, nilLinker.InvestigateURL("abc"))
}

func TestPresenterRows(t *testing.T) {
	s := incident.NewStore()
	s.ReplaceSnapshot([]entity.Incident{
		{ID: "1", Timestamp: "2025-12-07T22:00:05Z", IncidentType: "ИНН", Action: "BLOCK"},
		{ID: "2", Timestamp: "broken", IncidentType: "Email", Action: "custom"},
	})
	s.ToggleSelect("2")

	p := incident.NewPresenter(nil, incident.NewTimeFormatter("en", "UTC"), incident.NewLinker("http://kibana", "incident_id"))
	rows := p.Rows(s)
	require.Len(t, rows, 2)

	assert.Equal(t, "1", rows[0].Incident.ID)
	assert.Equal(t, entity.SeverityHigh, rows[0].Severity)
	assert.Equal(t, "Blocked", rows[0].Badge.Label)
	assert.Equal(t, "December 7, 2025 at 10:00:05 PM", rows[0].When)
	assert.NotEmpty(t, rows[0].InvestigateURL)
	assert.False(t, rows[0].Selected)

	assert.Equal(t, entity.SeverityMedium, rows[1].Severity)
	assert.Equal(t, entity.ActionBadge{Label: "custom", Tier: entity.BadgeNeutral}, rows[1].Badge)
	assert.Equal(t, incident.InvalidDateLabel, rows[1].When)
	assert.True(t, rows[1].Selected)
}
