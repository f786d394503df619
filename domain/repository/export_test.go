package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func severityOf(incidentType string) entity.Severity {
	switch incidentType {
	case "INN":
		return entity.SeverityHigh
	case "EMAIL":
		return entity.SeverityMedium
	}
	return entity.SeverityLow
}

func testIncidents(n int) []entity.Incident {
	types := []string{"OTHER", "EMAIL", "INN"}
	incidents := make([]entity.Incident, 0, n)
	for i := 0; i < n; i++ {
		incidents = append(incidents, entity.Incident{
			ID:           fmt.Sprintf("%d", i),
			Timestamp:    "2025-12-07T22:00:00Z",
			IncidentType: types[i%len(types)],
			UserID:       fmt.Sprintf("user%d", i),
			Platform:     "telegram",
			Action:       "BLOCK",
		})
	}
	return incidents
}

func TestMarkdownToStorage(t *testing.T) {
	html := repository.MarkdownToStorage("# Report\r\n\r\n<script>alert(1)</script>\r\n\r\n| id | type |\n|---|---|\n| 1 | INN |\n")
	assert.Contains(t, html, "<h1>Report</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>INN</td>")
	assert.NotContains(t, html, "<script>")
}

func TestTokenCalculatorSplitIncidents(t *testing.T) {
	tc := &repository.TokenCalculator{}
	incidents := testIncidents(30)

	line := tc.CountTokens(tc.FormatIncident(incidents[0]))
	require.Greater(t, line, 0)

	chunks := tc.SplitIncidents(incidents, "", line*10)
	total := 0
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 10)
		total += len(c)
	}
	assert.Equal(t, 30, total)
	assert.Greater(t, len(chunks), 1)

	assert.Empty(t, tc.SplitIncidents(nil, "", 100))
}

func TestTokenCalculatorPrioritizeIncidents(t *testing.T) {
	tc := &repository.TokenCalculator{}
	got := tc.PrioritizeIncidents(testIncidents(6), severityOf)

	ids := []string{}
	for _, inc := range got {
		ids = append(ids, inc.ID)
	}
	assert.Equal(t, []string{"2", "5", "1", "4", "0", "3"}, ids)
}

func newOpenAIServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		body, _ := io.ReadAll(r.Body)
		n := calls.Add(1)

		content := fmt.Sprintf("summary %d", n)
		if strings.Contains(string(body), "partial summaries") {
			content = "merged"
		}
		resp := map[string]any{
			"id":      fmt.Sprintf("chatcmpl-%d", n),
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "gpt-4",
			"choices": []map[string]any{
				{
					"index":         0,
					"finish_reason": "stop",
					"message":       map[string]any{"role": "assistant", "content": content},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func newTestAIRepository(srv *httptest.Server, opts ...repository.AIOption) *repository.AIRepository {
	client := openai.NewClient(
		option.WithBaseURL(srv.URL+"/"),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
	opts = append([]repository.AIOption{repository.WithAIRetry(1, 0)}, opts...)
	return repository.NewAIRepositoryWithClient(&client, "gpt-4", severityOf, opts...)
}

func TestSummarizeIncidents(t *testing.T) {
	var calls atomic.Int32
	srv := newOpenAIServer(t, &calls)
	defer srv.Close()

	r := newTestAIRepository(srv)
	got, err := r.SummarizeIncidents(context.Background(), testIncidents(3))
	require.NoError(t, err)
	assert.Equal(t, "summary 1", got)
	assert.Equal(t, int32(1), calls.Load())

	got, err = r.SummarizeIncidents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSummarizeIncidentsInChunks(t *testing.T) {
	var calls atomic.Int32
	srv := newOpenAIServer(t, &calls)
	defer srv.Close()

	tc := &repository.TokenCalculator{}
	incidents := testIncidents(20)
	// ベースプロンプトと数件分しか入らない上限
	limit := tc.CountIncidentsTokens(incidents[:5], "") + 150

	r := newTestAIRepository(srv, repository.WithAIMaxTokens(limit), repository.WithAITokenCalculator(tc))
	got, err := r.SummarizeIncidents(context.Background(), incidents)
	require.NoError(t, err)
	assert.Equal(t, "merged", got)
	assert.Greater(t, calls.Load(), int32(2))
}
