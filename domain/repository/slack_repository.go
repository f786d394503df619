package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Songmu/retry"
	ttlcache "github.com/jellydator/ttlcache/v3"
	"github.com/slack-go/slack"
)

var ErrSlackNotFound = fmt.Errorf("not found")

type SlackRepositoryer interface {
	GetUserByID(id string) (*slack.User, error)
	GetUserPreferredName(user *slack.User) string
	GetChannelByName(name string) (*slack.Channel, error)
	PostMessage(channelID string, opts ...slack.MsgOption) (string, error)
	UpdateMessage(channelID, ts string, opts ...slack.MsgOption) error
	PostEphemeral(channelID, userID string, opts ...slack.MsgOption)
	OpenView(triggerID string, view slack.ModalViewRequest) error
}

type SlackRepository struct {
	client        *slack.Client
	channelsCache *ttlcache.Cache[string, []slack.Channel]
	userCache     *ttlcache.Cache[string, *slack.User]
	attempts      uint
	wait          time.Duration
}

type SlackOption func(*SlackRepository)

// WithSlackRetry はSlack API呼び出しのリトライ回数と間隔を変更する
func WithSlackRetry(attempts uint, wait time.Duration) SlackOption {
	return func(r *SlackRepository) {
		if attempts > 0 {
			r.attempts = attempts
		}
		r.wait = wait
	}
}

func NewSlackRepository(client *slack.Client, opts ...SlackOption) *SlackRepository {
	r := &SlackRepository{
		client:        client,
		channelsCache: ttlcache.New(ttlcache.WithTTL[string, []slack.Channel](time.Hour)),
		userCache:     ttlcache.New(ttlcache.WithTTL[string, *slack.User](time.Hour)),
		attempts:      3,
		wait:          time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	go r.channelsCache.Start()
	go r.userCache.Start()

	// 失効時は自動で更新する
	r.channelsCache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, _ *ttlcache.Item[string, []slack.Channel]) {
		if reason != ttlcache.EvictionReasonExpired {
			return
		}
		slog.Info("Refreshing channels cache")
		_, err := r.getChannels()
		if err != nil {
			slog.Error("Failed to refresh channels cache", slog.Any("err", err))
		}
	})
	return r
}

func (h *SlackRepository) GetUserByID(id string) (*slack.User, error) {
	if u := h.userCache.Get(id); u != nil {
		return u.Value(), nil
	}
	user, err := h.client.GetUserInfo(id)
	if err != nil {
		if strings.Contains(err.Error(), "user_not_found") {
			return nil, ErrSlackNotFound
		}
		return nil, err
	}
	h.userCache.Set(id, user, ttlcache.DefaultTTL)
	return user, nil
}

func (h *SlackRepository) GetUserPreferredName(user *slack.User) string {
	if user == nil {
		return ""
	}
	if user.Profile.DisplayName != "" {
		return user.Profile.DisplayName
	}
	if user.RealName != "" {
		return user.RealName
	}
	return user.Name
}

func (h *SlackRepository) getChannels() ([]slack.Channel, error) {
	cacheKey := "channels"
	if channels := h.channelsCache.Get(cacheKey); channels != nil {
		return channels.Value(), nil
	}
	nextCursor := ""
	channels := make([]slack.Channel, 0)
	for {
		cs, next, err := h.client.GetConversations(&slack.GetConversationsParameters{
			Limit:           1000,
			Cursor:          nextCursor,
			ExcludeArchived: true,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, cs...)
		if next == "" {
			break
		}
		nextCursor = next
	}

	h.channelsCache.Set(cacheKey, channels, ttlcache.DefaultTTL)
	return channels, nil
}

func (h *SlackRepository) GetChannelByName(name string) (*slack.Channel, error) {
	channels, err := h.getChannels()
	if err != nil {
		return nil, err
	}
	for _, c := range channels {
		if c.Name == strings.TrimPrefix(name, "#") {
			return &c, nil
		}
	}
	return nil, ErrSlackNotFound
}

// PostMessage は投稿したメッセージのタイムスタンプを返す。ボードの更新に使う
func (h *SlackRepository) PostMessage(channelID string, opts ...slack.MsgOption) (string, error) {
	var ts string
	err := retry.Retry(h.attempts, h.wait, func() error {
		_, t, err := h.client.PostMessage(channelID, opts...)
		if err != nil {
			slog.Warn("PostMessage", slog.Any("channelID", channelID), slog.Any("err", err))
			return err
		}
		ts = t
		return nil
	})
	if err != nil {
		slog.Error("Failed to PostMessage", slog.Any("err", err))
		return "", err
	}
	return ts, nil
}

func (h *SlackRepository) UpdateMessage(channelID, ts string, opts ...slack.MsgOption) error {
	notFound := false
	err := retry.Retry(h.attempts, h.wait, func() error {
		_, _, _, err := h.client.UpdateMessage(channelID, ts, opts...)
		if err != nil {
			slog.Warn("UpdateMessage", slog.Any("channelID", channelID), slog.Any("ts", ts), slog.Any("err", err))
			// 消されたメッセージはリトライしても無駄
			if strings.Contains(err.Error(), "message_not_found") {
				notFound = true
				return nil
			}
		}
		return err
	})
	if err != nil {
		slog.Error("Failed to UpdateMessage", slog.Any("err", err))
		return err
	}
	if notFound {
		return ErrSlackNotFound
	}
	return nil
}

func (h *SlackRepository) PostEphemeral(channelID, userID string, opts ...slack.MsgOption) {
	go func() {
		err := retry.Retry(h.attempts, h.wait, func() error {
			_, err := h.client.PostEphemeral(channelID, userID, opts...)
			if err != nil {
				slog.Warn("PostEphemeral", slog.Any("channelID", channelID), slog.Any("userID", userID), slog.Any("err", err))
			}
			return err
		})
		if err != nil {
			slog.Error("Failed to PostEphemeral", slog.Any("err", err))
		}
	}()
}

func (h *SlackRepository) OpenView(triggerID string, view slack.ModalViewRequest) error {
	err := retry.Retry(h.attempts, h.wait, func() error {
		_, err := h.client.OpenView(triggerID, view)
		if err != nil {
			slog.Warn("OpenView", slog.Any("triggerID", triggerID), slog.Any("err", err))
		}
		return err
	})
	if err != nil {
		slog.Error("Failed to OpenView", slog.Any("err", err))
	}
	return err
}
