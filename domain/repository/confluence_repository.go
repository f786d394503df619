package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
	goconfluence "github.com/virtomize/confluence-go-api"
)

type ConfluenceRepository struct {
	domain     string
	ansectorID string
	spaceKey   string
	client     *goconfluence.API
	policy     *bluemonday.Policy
}

func NewConfluenceRepository(domain, user, password, spaceKey, ancestorID string) (*ConfluenceRepository, error) {
	api, err := goconfluence.NewAPI(
		fmt.Sprintf("https://%s.atlassian.net/wiki/rest/api", domain),
		user,
		password)
	if err != nil {
		return nil, fmt.Errorf("failed to create confluence api: %w", err)
	}

	return &ConfluenceRepository{
		domain:     domain,
		ansectorID: ancestorID,
		spaceKey:   spaceKey,
		client:     api,
		policy:     bluemonday.UGCPolicy(),
	}, nil
}

// MarkdownToStorage はMarkdownをConfluenceのstorage形式に入れられるHTMLに変換する
func MarkdownToStorage(markdown string) string {
	return markdownToStorage(bluemonday.UGCPolicy(), markdown)
}

func markdownToStorage(policy *bluemonday.Policy, markdown string) string {
	html := blackfriday.Run([]byte(strings.ReplaceAll(markdown, "\r\n", "\n")),
		blackfriday.WithExtensions(blackfriday.CommonExtensions),
	)
	return string(policy.SanitizeBytes(html))
}

// ExportReport はMarkdownのレポートをページとして作成し、そのURLを返す
func (c *ConfluenceRepository) ExportReport(ctx context.Context, title, markdown string) (string, error) {
	data := &goconfluence.Content{
		Type:  "page",
		Title: title,
		Body: goconfluence.Body{
			Storage: goconfluence.Storage{
				Value:          markdownToStorage(c.policy, markdown),
				Representation: "storage",
			},
		},
		Version: &goconfluence.Version{ // mandatory
			Number: 1,
		},
	}
	if c.ansectorID != "" {
		data.Ancestors = append(data.Ancestors, goconfluence.Ancestor{
			ID: c.ansectorID,
		})
	}

	if c.spaceKey != "" {
		data.Space = &goconfluence.Space{
			Key: c.spaceKey,
		}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	content, err := c.client.CreateContent(data)
	if err != nil {
		return "", fmt.Errorf("failed to create confluence page: %w", err)
	}

	return c.pageURL(content.ID), nil
}

func (c *ConfluenceRepository) pageURL(id string) string {
	if c.spaceKey == "" {
		return fmt.Sprintf("https://%s.atlassian.net/wiki/pages/viewpage.action?pageId=%s", c.domain, id)
	}
	return fmt.Sprintf("https://%s.atlassian.net/wiki/spaces/%s/pages/%s", c.domain, c.spaceKey, id)
}
