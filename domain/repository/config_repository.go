package repository

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/spf13/viper"
)

var configDefaults = map[string]any{
	"api.endpoint":            "http://localhost:8000/api/v1/incidents",
	"api.limit":               100,
	"api.offset":              0,
	"api.timeout":             "10s",
	"api.attempts":            1,
	"api.retry_wait":          "1s",
	"api.token":               "",
	"poller.interval":         "3s",
	"display.locale":          "ru-RU",
	"display.timezone":        "Local",
	"display.prune_selection": true,
	"display.max_rows":        40,
	"severity.high":           []string{},
	"severity.medium":         []string{},
	"investigate.base_url":    "",
	"investigate.field":       "incident_id",
	"slack.channel":           "dlp-incidents",
	"archive.enabled":         false,
	"archive.table":           "dlp_incidents",
	"confluence.domain":       "",
	"confluence.space":        "",
	"confluence.ancestor_id":  "",
}

// NewConfigRepository は設定ファイルと環境変数から設定を読み込む。
// ファイルが存在しない場合はデフォルト値と環境変数だけを使う
func NewConfigRepository(path string) (*Config, error) {
	v := viper.New()
	for k, val := range configDefaults {
		v.SetDefault(k, val)
	}

	v.AutomaticEnv()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config error: %w", err)
			}
		}
	}

	var c Config
	err := v.Unmarshal(&c)
	if err != nil {
		return nil, fmt.Errorf("unmarshal config error: %w", err)
	}
	valid := validator.New()
	if err = valid.Struct(c); err != nil {
		return nil, fmt.Errorf("validate config error: %w", err)
	}

	return &c, nil
}

type Config struct {
	API         APIConfig               `mapstructure:"api"`
	Poller      PollerConfig            `mapstructure:"poller"`
	Display     DisplayConfig           `mapstructure:"display"`
	Severity    entity.SeverityKeywords `mapstructure:"severity"`
	Investigate InvestigateConfig       `mapstructure:"investigate"`
	Slack       SlackConfig             `mapstructure:"slack"`
	Archive     ArchiveConfig           `mapstructure:"archive"`
	Confluence  ConfluenceConfig        `mapstructure:"confluence"`
}

type APIConfig struct {
	Endpoint  string        `mapstructure:"endpoint" validate:"required,url"`
	Limit     int           `mapstructure:"limit" validate:"gte=1"`
	Offset    int           `mapstructure:"offset" validate:"gte=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"required"`
	Attempts  int           `mapstructure:"attempts" validate:"gte=1"`
	RetryWait time.Duration `mapstructure:"retry_wait"`
	Token     string        `mapstructure:"token"`
}

type PollerConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"required"`
}

type DisplayConfig struct {
	Locale         string `mapstructure:"locale"`
	Timezone       string `mapstructure:"timezone"`
	PruneSelection bool   `mapstructure:"prune_selection"`
	MaxRows        int    `mapstructure:"max_rows" validate:"gte=1,lte=45"`
}

type InvestigateConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Field   string `mapstructure:"field"`
}

type SlackConfig struct {
	Channel string `mapstructure:"channel"`
}

type ArchiveConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Table   string `mapstructure:"table" validate:"required_if=Enabled true"`
}

type ConfluenceConfig struct {
	AncestorID string `mapstructure:"ancestor_id"`
	Space      string `mapstructure:"space"`
	Domain     string `mapstructure:"domain"`
}
