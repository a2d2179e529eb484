package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/campaign"
	"github.com/zhfmzl/priceUpdate-BTB/internal/export"
	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
)

var campaignCmd = &cobra.Command{
	Use:   "campaign",
	Short: "Collect per-grade prices for a set of players",
	Long: "Resolves players by season and minimum overall (or takes explicit ids), reads the price " +
		"of every requested grade from the datacenter, and upserts the results into the prices collection.",
	Example: "  priceupdate campaign --season 256 --grades 1-8\n" +
		"  priceupdate campaign --season 256,257 --min-ovr 110 --grouping season\n" +
		"  priceupdate campaign --ids 101000001,101000002 --grades 5 --dry-run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		spec, err := campaignSpecFromFlags(cmd)
		if err != nil {
			return err
		}
		opts := envOptionsFromFlags(cmd)

		env, err := initCampaign(ctx, "campaign", opts)
		if err != nil {
			return err
		}
		defer env.Close()

		res, runErr := env.Runner.Run(ctx, spec)
		if err := finishCampaign(cmd, res); err != nil {
			return err
		}
		if runErr != nil {
			return eris.Wrap(runErr, "campaign")
		}
		return nil
	},
}

// campaignSpecFromFlags reads the campaign selection flags.
func campaignSpecFromFlags(cmd *cobra.Command) (model.CampaignSpec, error) {
	seasons, _ := cmd.Flags().GetStringSlice("season")
	minOvr, _ := cmd.Flags().GetInt("min-ovr")
	gradeFlags, _ := cmd.Flags().GetStringSlice("grades")
	ids, _ := cmd.Flags().GetInt64Slice("ids")

	grades, err := model.ParseGrades(gradeFlags)
	if err != nil {
		return model.CampaignSpec{}, err
	}
	if len(grades) == 0 {
		for _, g := range cfg.Campaign.Grades {
			grades = append(grades, model.Grade(g))
		}
	}
	if len(seasons) == 0 && len(ids) == 0 {
		return model.CampaignSpec{}, eris.New("campaign: --season or --ids is required")
	}

	return model.CampaignSpec{
		Seasons:   seasons,
		MinOvr:    minOvr,
		Grades:    grades,
		EntityIDs: ids,
	}, nil
}

func envOptionsFromFlags(cmd *cobra.Command) envOptions {
	var o envOptions
	o.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	o.Grouping, _ = cmd.Flags().GetString("grouping")
	o.FailurePolicy, _ = cmd.Flags().GetString("failure-policy")
	o.ExclusionFile, _ = cmd.Flags().GetString("exclude")
	o.DryRun, _ = cmd.Flags().GetBool("dry-run")
	return o
}

// finishCampaign prints the run summary and writes the optional XLSX dump.
func finishCampaign(cmd *cobra.Command, res *campaign.Result) error {
	if res == nil || res.Run == nil {
		return nil
	}
	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := export.WriteRecords(out, res.Records); err != nil {
			return err
		}
		zap.L().Info("records exported", zap.String("path", out), zap.Int("records", len(res.Records)))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Run)
}

func addCampaignFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "max concurrent pages (default from config)")
	cmd.Flags().String("grouping", "", "scheduling: grade, entity or season (default from config)")
	cmd.Flags().String("failure-policy", "", "failed grades: drop or record (default from config)")
	cmd.Flags().String("exclude", "", "YAML or JSON file of player ids to skip")
	cmd.Flags().Bool("dry-run", false, "extract but keep prices in memory")
	cmd.Flags().String("out", "", "write outcomes to this XLSX file")
}

func init() {
	campaignCmd.Flags().StringSlice("season", nil, "season selectors; the last three characters give the season number")
	campaignCmd.Flags().Int("min-ovr", 0, "minimum best overall (applied above 10)")
	campaignCmd.Flags().StringSlice("grades", nil, "grades to collect, e.g. 1-8 or 1,5,8 (default from config)")
	campaignCmd.Flags().Int64Slice("ids", nil, "explicit player ids; skips the search")
	addCampaignFlags(campaignCmd)
	rootCmd.AddCommand(campaignCmd)
}
