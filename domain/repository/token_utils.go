package repository

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/pyama86/dlpwatch/domain/entity"
)

const (
	// デフォルトのトークン制限
	DefaultMaxTokens = 100000
	// 1件のインシデントあたりの平均トークン数の見積もり
	AverageTokensPerIncident = 40
)

// GetMaxTokens は環境変数またはデフォルト値からトークン制限を取得
func GetMaxTokens() int {
	if envMaxTokens := os.Getenv("MAX_TOKENS"); envMaxTokens != "" {
		if maxTokens, err := strconv.Atoi(envMaxTokens); err == nil && maxTokens > 0 {
			return maxTokens
		}
	}
	return DefaultMaxTokens
}

// トークン計算ユーティリティ。ゼロ値は文字数による概算で動く
type TokenCalculator struct {
	encoder *tiktoken.Tiktoken
}

func NewTokenCalculator() (*TokenCalculator, error) {
	encoder, err := tiktoken.EncodingForModel("gpt-4")
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding for GPT-4: %w", err)
	}

	return &TokenCalculator{
		encoder: encoder,
	}, nil
}

func (tc *TokenCalculator) CountTokens(text string) int {
	if tc == nil || tc.encoder == nil {
		// フォールバック: 文字数 / 4 (おおよその見積もり)
		return len(text) / 4
	}

	tokens := tc.encoder.Encode(text, nil, nil)
	return len(tokens)
}

// FormatIncident はプロンプトに埋め込む1行を作る
func (tc *TokenCalculator) FormatIncident(inc entity.Incident) string {
	return fmt.Sprintf("- %s type=%s user=%s platform=%s action=%s id=%s",
		inc.Timestamp,
		inc.IncidentType,
		inc.UserID,
		inc.Platform,
		inc.Action,
		inc.ID)
}

func (tc *TokenCalculator) CountIncidentsTokens(incidents []entity.Incident, basePrompt string) int {
	var allText strings.Builder
	allText.WriteString(basePrompt)
	allText.WriteString("\n\n")

	for _, inc := range incidents {
		allText.WriteString(tc.FormatIncident(inc))
		allText.WriteString("\n")
	}

	return tc.CountTokens(allText.String())
}

// SplitIncidents はトークン制限に収まるようにインシデントを分割する
func (tc *TokenCalculator) SplitIncidents(incidents []entity.Incident, basePrompt string, maxTokens int) [][]entity.Incident {
	if len(incidents) == 0 {
		return [][]entity.Incident{}
	}

	var chunks [][]entity.Incident
	var currentChunk []entity.Incident
	baseTokens := tc.CountTokens(basePrompt)
	currentTokens := baseTokens

	for _, inc := range incidents {
		incTokens := tc.CountTokens(tc.FormatIncident(inc))

		if currentTokens+incTokens > maxTokens && len(currentChunk) > 0 {
			chunks = append(chunks, currentChunk)
			currentChunk = []entity.Incident{inc}
			currentTokens = baseTokens + incTokens
		} else {
			currentChunk = append(currentChunk, inc)
			currentTokens += incTokens
		}
	}

	if len(currentChunk) > 0 {
		chunks = append(chunks, currentChunk)
	}

	return chunks
}

// PrioritizeIncidents は重要度の高いものを先頭に並べ替える。同じ重要度の中では元の順序を保つ
func (tc *TokenCalculator) PrioritizeIncidents(incidents []entity.Incident, severityOf SeverityFunc) []entity.Incident {
	result := slices.Clone(incidents)
	if severityOf == nil {
		return result
	}
	rank := map[entity.Severity]int{
		entity.SeverityHigh:   0,
		entity.SeverityMedium: 1,
		entity.SeverityLow:    2,
	}
	slices.SortStableFunc(result, func(a, b entity.Incident) int {
		return rank[severityOf(a.IncidentType)] - rank[severityOf(b.IncidentType)]
	})
	return result
}

// 分割されたサマリを統合するためのプロンプト生成
func (tc *TokenCalculator) CreateMergePrompt(summaries []string) string {
	var builder strings.Builder
	builder.WriteString("Below are partial summaries of DLP incidents. Merge them into a single summary without duplicates.\n\n")

	for i, summary := range summaries {
		builder.WriteString(fmt.Sprintf("## Part %d\n%s\n\n", i+1, summary))
	}

	builder.WriteString("Keep the same structure: overview, most affected users, most affected platforms, recommended actions.")

	return builder.String()
}
