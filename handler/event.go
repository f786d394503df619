package handler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pyama86/dlpwatch/domain/repository"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

type EventHandler struct {
	ctx             context.Context
	slackRepository repository.SlackRepositoryer
	board           *Board
}

func NewEventHandler(ctx context.Context, slackRepository repository.SlackRepositoryer, board *Board) *EventHandler {
	return &EventHandler{
		ctx:             ctx,
		slackRepository: slackRepository,
		board:           board,
	}
}

func (h *EventHandler) Handle(event *slackevents.EventsAPIInnerEvent) error {
	switch ev := event.Data.(type) {
	case *slackevents.AppMentionEvent:
		slog.Info("AppMentionEvent", "user", ev.User, "channel", ev.Channel)
		return h.handleMentionEvent(ev)
	}
	return nil
}

// ボードのチャンネルでメンションされたらボードを最下部に投稿し直す
func (h *EventHandler) handleMentionEvent(event *slackevents.AppMentionEvent) error {
	if event.Channel != h.board.ChannelID() {
		msgOptions := []slack.MsgOption{
			slack.MsgOptionText(fmt.Sprintf("The DLP incident board lives in <#%s>.", h.board.ChannelID()), false),
		}
		if event.ThreadTimeStamp != "" {
			msgOptions = append(msgOptions, slack.MsgOptionTS(event.ThreadTimeStamp))
		}
		if _, err := h.slackRepository.PostMessage(event.Channel, msgOptions...); err != nil {
			return fmt.Errorf("failed to PostMessage: %w", err)
		}
		return nil
	}

	if err := h.board.Repost(); err != nil {
		return fmt.Errorf("failed to Repost: %w", err)
	}
	return nil
}
