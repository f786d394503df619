package handler

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/domain/repository"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// Core はSlackに依存しないインシデント監視の部品一式
type Core struct {
	Config     *repository.Config
	Classifier *incident.Classifier
	Normalizer *incident.Normalizer
	Store      *incident.Store
	Presenter  *incident.Presenter
	Repository repository.Repository
}

// NewCore は設定からAPIクライアント、アーカイブ、Storeを組み立てる
func NewCore(cfg *repository.Config, storeOpts ...incident.StoreOption) (*Core, error) {
	classifier := incident.NewClassifier(cfg.Severity)

	api, err := repository.NewIncidentAPIRepository(cfg.API)
	if err != nil {
		return nil, err
	}

	var archive repository.IncidentArchive
	if cfg.Archive.Enabled {
		d, err := repository.NewDynamoDBRepository(cfg.Archive.Table, classifier.SeverityOf)
		if err != nil {
			return nil, err
		}
		archive = d
	}

	store := incident.NewStore(append([]incident.StoreOption{
		incident.WithLocale(cfg.Display.Locale),
		incident.WithPruneOnMerge(cfg.Display.PruneSelection),
	}, storeOpts...)...)
	presenter := incident.NewPresenter(
		classifier,
		incident.NewTimeFormatter(cfg.Display.Locale, cfg.Display.Timezone),
		incident.NewLinker(cfg.Investigate.BaseURL, cfg.Investigate.Field),
	)

	return &Core{
		Config:     cfg,
		Classifier: classifier,
		Normalizer: incident.NewNormalizer(),
		Store:      store,
		Presenter:  presenter,
		Repository: repository.NewRepository(api, archive),
	}, nil
}

func Handle(ctx context.Context, configPath string) error {
	webApi := slack.New(
		os.Getenv("SLACK_BOT_TOKEN"),
		slack.OptionAppLevelToken(os.Getenv("SLACK_APP_TOKEN")),
	)
	socketMode := socketmode.New(
		webApi,
	)
	authTest, authTestErr := webApi.AuthTest()
	if authTestErr != nil {
		return fmt.Errorf("SLACK_BOT_TOKEN is invalid: %w", authTestErr)
	}
	slog.Info("Bot ID", slog.String("bot_id", authTest.UserID))

	cfg, err := repository.NewConfigRepository(configPath)
	if err != nil {
		return err
	}

	core, err := NewCore(cfg)
	if err != nil {
		return err
	}

	slackRepository := repository.NewSlackRepository(webApi)
	channel, err := slackRepository.GetChannelByName(cfg.Slack.Channel)
	if err != nil {
		return fmt.Errorf("failed to find board channel %s: %w", cfg.Slack.Channel, err)
	}

	var exporter repository.ReportExporter
	if os.Getenv("CONFLUENCE_USERNAME") != "" && os.Getenv("CONFLUENCE_PASSWORD") != "" && cfg.Confluence.Domain != "" {
		r, err := repository.NewConfluenceRepository(
			cfg.Confluence.Domain,
			os.Getenv("CONFLUENCE_USERNAME"),
			os.Getenv("CONFLUENCE_PASSWORD"),
			cfg.Confluence.Space,
			cfg.Confluence.AncestorID,
		)
		if err != nil {
			return err
		}
		exporter = r
	}

	var summarizer repository.Summarizer
	aiRepository, err := repository.NewAIRepository(core.Classifier.SeverityOf)
	if err != nil {
		return err
	}
	if aiRepository != nil {
		summarizer = aiRepository
	}

	board := NewBoard(slackRepository, core.Store, core.Presenter, channel.ID, cfg.Display.MaxRows)
	poller := NewPoller(core.Repository, core.Normalizer, core.Store,
		WithPollInterval(cfg.Poller.Interval),
		WithPollTimeout(cfg.API.Timeout),
		WithPollListener(board),
		WithPollListener(NewArchiveListener(core.Repository)),
	)

	// 起動時は常に新しいボードを投稿する
	if err := board.Repost(); err != nil {
		return err
	}
	stop := poller.Start(ctx)
	defer stop()

	eventHandler := NewEventHandler(ctx, slackRepository, board)
	callbackHandler := NewCallbackHandler(
		ctx,
		core.Store,
		board,
		poller,
		slackRepository,
		core.Presenter,
		core.Repository,
		exporter,
		summarizer,
	)

	go func() {
		for envelope := range socketMode.Events {
			switch envelope.Type {
			case socketmode.EventTypeEventsAPI:
				socketMode.Ack(*envelope.Request)
				eventPayload, ok := envelope.Data.(slackevents.EventsAPIEvent)
				if !ok {
					slog.Error("Failed to cast to EventsAPIEvent")
					continue
				}

				switch eventPayload.Type {
				case slackevents.CallbackEvent:
					innerEvent := eventPayload.InnerEvent
					if err := eventHandler.Handle(&innerEvent); err != nil {
						slog.Error("Failed to handle event", slog.Any("err", err))
					}
				}
			case socketmode.EventTypeInteractive:
				socketMode.Ack(*envelope.Request)
				callback, ok := envelope.Data.(slack.InteractionCallback)
				if !ok {
					slog.Error("Failed to cast to InteractionCallback")
					continue
				}
				if err := callbackHandler.Handle(&callback); err != nil {
					slog.Error("Failed to handle callback", slog.Any("err", err))
				}
			}
		}
	}()

	slog.Info("Board started", slog.String("channel", cfg.Slack.Channel), slog.String("endpoint", cfg.API.Endpoint))
	return socketMode.RunContext(ctx)
}
