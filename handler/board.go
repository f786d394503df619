package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/domain/repository"
	"github.com/pyama86/dlpwatch/presentation/blocks"
	"github.com/slack-go/slack"
)

// Board はチャンネルに1つだけ置くインシデント一覧メッセージを管理する
type Board struct {
	slackRepository repository.SlackRepositoryer
	store           *incident.Store
	presenter       *incident.Presenter
	channelID       string
	maxRows         int

	mu       sync.Mutex
	ts       string
	rendered string
}

func NewBoard(slackRepository repository.SlackRepositoryer, store *incident.Store, presenter *incident.Presenter, channelID string, maxRows int) *Board {
	return &Board{
		slackRepository: slackRepository,
		store:           store,
		presenter:       presenter,
		channelID:       channelID,
		maxRows:         maxRows,
	}
}

func (b *Board) ChannelID() string {
	return b.channelID
}

// TS は現在のボードメッセージのタイムスタンプ。まだ投稿していなければ空
func (b *Board) TS() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ts
}

func (b *Board) Blocks() []slack.Block {
	status := b.store.Status()
	updatedAt := ""
	if !status.LastSuccessAt.IsZero() {
		// 分単位にして、変化がなければ更新しない
		updatedAt = status.LastSuccessAt.Format("15:04")
	}
	return blocks.IncidentBoard(blocks.Board{
		Rows:      b.presenter.Rows(b.store),
		Status:    status,
		Sort:      b.store.Sort(),
		Selected:  len(b.store.Selected()),
		MaxRows:   b.maxRows,
		UpdatedAt: updatedAt,
	})
}

// Publish はボードを投稿し、投稿済みなら更新する。内容が変わっていなければ何もしない
func (b *Board) Publish() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publish(false)
}

// Repost は新しいメッセージとしてボードを投稿し直す
func (b *Board) Repost() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.publish(true)
}

func (b *Board) publish(force bool) error {
	bs := b.Blocks()
	encoded, err := json.Marshal(bs)
	if err != nil {
		return fmt.Errorf("failed to encode board: %w", err)
	}
	rendered := string(encoded)
	opts := []slack.MsgOption{
		slack.MsgOptionText("DLP incidents", false),
		slack.MsgOptionBlocks(bs...),
	}

	if b.ts != "" && !force {
		if rendered == b.rendered {
			return nil
		}
		err := b.slackRepository.UpdateMessage(b.channelID, b.ts, opts...)
		if err == nil {
			b.rendered = rendered
			return nil
		}
		if !errors.Is(err, repository.ErrSlackNotFound) {
			return fmt.Errorf("failed to UpdateMessage: %w", err)
		}
		slog.Info("Board message was deleted, posting a new one", slog.String("channel", b.channelID))
	}

	ts, err := b.slackRepository.PostMessage(b.channelID, opts...)
	if err != nil {
		return fmt.Errorf("failed to PostMessage: %w", err)
	}
	b.ts = ts
	b.rendered = rendered
	return nil
}

func (b *Board) OnPoll(_ context.Context, _ PollResult) {
	if err := b.Publish(); err != nil {
		slog.Error("Failed to publish board", slog.Any("err", err))
	}
}
