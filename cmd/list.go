package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/pyama86/dlpwatch/domain/entity"
	"github.com/pyama86/dlpwatch/domain/incident"
	"github.com/pyama86/dlpwatch/domain/repository"
	"github.com/pyama86/dlpwatch/handler"
	"github.com/spf13/cobra"
)

type listOptions struct {
	sort   string
	desc   bool
	json   bool
	limit  int
	offset int
}

var listOpts listOptions

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "fetch incidents once and print them",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := repository.NewConfigRepository(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("limit") {
			cfg.API.Limit = listOpts.limit
		}
		if cmd.Flags().Changed("offset") {
			cfg.API.Offset = listOpts.offset
		}
		sortCfg, err := listOpts.sortConfig()
		if err != nil {
			return err
		}
		core, err := handler.NewCore(cfg, incident.WithSort(sortCfg))
		if err != nil {
			return err
		}
		return runList(cmd.Context(), core, listOpts.json, cmd.OutOrStdout())
	},
}

func init() {
	listCmd.Flags().StringVar(&listOpts.sort, "sort", string(entity.SortByTimestamp), "sort key (timestamp, incident_type, user_id)")
	listCmd.Flags().BoolVar(&listOpts.desc, "desc", true, "sort descending")
	listCmd.Flags().BoolVar(&listOpts.json, "json", false, "print as JSON lines")
	listCmd.Flags().IntVar(&listOpts.limit, "limit", 100, "page size sent to the incidents api")
	listCmd.Flags().IntVar(&listOpts.offset, "offset", 0, "page offset sent to the incidents api")
	rootCmd.AddCommand(listCmd)
}

type listedIncident struct {
	Severity entity.Severity `json:"severity_tier"`
	Badge    string          `json:"action_badge"`
	Incident entity.Incident `json:"incident"`
}

func (o listOptions) sortConfig() (entity.SortConfig, error) {
	key, err := entity.ParseSortKey(o.sort)
	if err != nil {
		return entity.SortConfig{}, err
	}
	sortCfg := entity.SortConfig{Key: key, Direction: entity.Ascending}
	if o.desc {
		sortCfg.Direction = entity.Descending
	}
	return sortCfg, nil
}

// runList は1回だけ取得して表示する。アーカイブには書き込まない
func runList(ctx context.Context, core *handler.Core, asJSON bool, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, core.Config.API.Timeout)
	defer cancel()
	payload, err := core.Repository.FetchIncidents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch incidents: %w", err)
	}
	incidents := core.Normalizer.Normalize(payload)
	core.Store.ReplaceSnapshot(incidents)
	slog.Debug("incidents fetched", slog.Int("count", len(incidents)))

	rows := core.Presenter.Rows(core.Store)
	if asJSON {
		enc := json.NewEncoder(w)
		for _, r := range rows {
			if err := enc.Encode(listedIncident{Severity: r.Severity, Badge: r.Badge.Label, Incident: r.Incident}); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tTIME\tTYPE\tUSER\tPLATFORM\tACTION\tID")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Severity, r.When, r.Incident.IncidentType, r.Incident.UserID, r.Incident.Platform, r.Badge.Label, r.Incident.ID)
	}
	return tw.Flush()
}
