package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/domain/repository"
	"github.com/pyama86/dlpwatch/presentation/blocks"
	"github.com/pyama86/dlpwatch/presentation/report"
	"github.com/slack-go/slack"
)

var ErrIncidentNotFound = fmt.Errorf("incident not found")

type Refresher interface {
	Refresh() error
}

type CallbackHandler struct {
	ctx             context.Context
	store           *incident.Store
	board           *Board
	poller          Refresher
	slackRepository repository.SlackRepositoryer
	presenter       *incident.Presenter
	archive         repository.IncidentArchive
	exporter        repository.ReportExporter
	summarizer      repository.Summarizer
	now             func() time.Time
}

func NewCallbackHandler(
	ctx context.Context,
	store *incident.Store,
	board *Board,
	poller Refresher,
	slackRepository repository.SlackRepositoryer,
	presenter *incident.Presenter,
	archive repository.IncidentArchive,
	exporter repository.ReportExporter,
	summarizer repository.Summarizer,
) *CallbackHandler {
	if archive == nil {
		archive = repository.NopArchive{}
	}
	return &CallbackHandler{
		ctx:             ctx,
		store:           store,
		board:           board,
		poller:          poller,
		slackRepository: slackRepository,
		presenter:       presenter,
		archive:         archive,
		exporter:        exporter,
		summarizer:      summarizer,
		now:             time.Now,
	}
}

func (h *CallbackHandler) Handle(callback *slack.InteractionCallback) error {
	if callback.Type != slack.InteractionTypeBlockActions {
		return nil
	}
	if len(callback.ActionCallback.BlockActions) < 1 {
		return fmt.Errorf("block_actions is empty")
	}
	action := callback.ActionCallback.BlockActions[0]

	switch {
	case strings.HasPrefix(action.ActionID, blocks.SortActionPrefix):
		key, err := entity.ParseSortKey(action.Value)
		if err != nil {
			return fmt.Errorf("sort_button failed: %w", err)
		}
		cfg := h.store.SetSort(key)
		slog.Info("sort changed", slog.String("key", string(cfg.Key)), slog.String("direction", cfg.Direction.String()), slog.String("user", callback.User.ID))
		return h.publish()
	case action.ActionID == blocks.SelectAllActionID:
		h.store.ToggleSelectAll()
		return h.publish()
	case action.ActionID == blocks.RefreshActionID:
		if err := h.poller.Refresh(); err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		return h.publish()
	case action.ActionID == blocks.ExportActionID:
		if err := h.exportSelected(callback.Channel.ID, callback.User.ID); err != nil {
			return fmt.Errorf("exportSelected failed: %w", err)
		}
	case action.ActionID == blocks.IncidentOverflowID:
		return h.handleOverflow(callback, action.SelectedOption.Value)
	}
	return nil
}

func (h *CallbackHandler) publish() error {
	if err := h.board.Publish(); err != nil {
		return fmt.Errorf("failed to publish board: %w", err)
	}
	return nil
}

func (h *CallbackHandler) handleOverflow(callback *slack.InteractionCallback, value string) error {
	switch {
	case strings.HasPrefix(value, blocks.SelectValuePrefix):
		id := strings.TrimPrefix(value, blocks.SelectValuePrefix)
		selected := h.store.ToggleSelect(id)
		slog.Debug("selection toggled", slog.String("id", id), slog.Bool("selected", selected))
		return h.publish()
	case strings.HasPrefix(value, blocks.DetailValuePrefix):
		id := strings.TrimPrefix(value, blocks.DetailValuePrefix)
		if err := h.openDetail(callback.TriggerID, id); err != nil {
			h.slackRepository.PostEphemeral(callback.Channel.ID, callback.User.ID,
				slack.MsgOptionText(fmt.Sprintf("Incident %s is no longer available.", id), false))
			return fmt.Errorf("openDetail failed: %w", err)
		}
	}
	return nil
}

// openDetail は一覧に無いものはアーカイブから探して表示する
func (h *CallbackHandler) openDetail(triggerID, id string) error {
	inc, ok := h.store.Find(id)
	archived := false
	if !ok {
		found, err := h.archive.FindIncident(h.ctx, id)
		if err != nil {
			return fmt.Errorf("failed to FindIncident: %w", err)
		}
		if found == nil {
			return fmt.Errorf("%w: %s", ErrIncidentNotFound, id)
		}
		inc = *found
		archived = true
	}

	row := h.presenter.Row(inc, h.store.IsSelected(id))
	return h.slackRepository.OpenView(triggerID, blocks.IncidentDetailModal(row, archived))
}

func (h *CallbackHandler) exportSelected(channelID, userID string) error {
	if h.exporter == nil {
		h.slackRepository.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(blocks.ExportUnavailable()...))
		return nil
	}
	selected := h.store.SelectedIncidents()
	if len(selected) == 0 {
		h.slackRepository.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(blocks.ExportNothingSelected()...))
		return nil
	}
	h.slackRepository.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(blocks.ExportStarted(len(selected))...))

	summary := ""
	if h.summarizer != nil {
		s, err := h.summarizer.SummarizeIncidents(h.ctx, selected)
		if err != nil {
			// 要約に失敗してもレポートは出す
			slog.Warn("Failed to summarize incidents", slog.Any("err", err))
		} else {
			summary = s
		}
	}

	author := userID
	if user, err := h.slackRepository.GetUserByID(userID); err == nil {
		author = h.slackRepository.GetUserPreferredName(user)
	} else {
		slog.Warn("Failed to GetUserByID", slog.String("user", userID), slog.Any("err", err))
	}

	rows := make([]incident.Row, 0, len(selected))
	for _, inc := range selected {
		rows = append(rows, h.presenter.Row(inc, true))
	}

	createdAt := h.now().Format("2006-01-02 15:04:05")
	title := report.Title(createdAt, len(rows))
	url, err := h.exporter.ExportReport(h.ctx, title, report.Render(title, createdAt, author, summary, rows))
	if err != nil {
		h.slackRepository.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(blocks.ExportFailed(err)...))
		return fmt.Errorf("failed to ExportReport: %w", err)
	}
	slog.Info("report exported", slog.String("url", url), slog.Int("incidents", len(rows)))
	h.slackRepository.PostEphemeral(channelID, userID, slack.MsgOptionBlocks(blocks.ExportSucceeded(len(rows), url, summary)...))
	return nil
}
