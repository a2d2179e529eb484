package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/zhfmzl/priceUpdate-BTB/internal/export"
	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/query"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "List the players a campaign would value",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initSearch(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := query.Options{}
		opts.Seasons, _ = cmd.Flags().GetStringSlice("season")
		opts.MinOvr, _ = cmd.Flags().GetInt("min-ovr")
		opts.NamePattern, _ = cmd.Flags().GetString("name")
		opts.Limit, _ = cmd.Flags().GetInt64("limit")

		reports, err := env.Builder.Search(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "search")
		}

		if out, _ := cmd.Flags().GetString("out"); out != "" {
			if err := export.WritePlayers(out, reports); err != nil {
				return err
			}
		}
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}

		if len(reports) == 0 {
			fmt.Fprintln(os.Stderr, "No players found.")
			return nil
		}
		formatPlayers(os.Stdout, reports)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringSlice("season", nil, "season selectors")
	searchCmd.Flags().Int("min-ovr", 0, "minimum best overall (applied above 10)")
	searchCmd.Flags().String("name", "", "name regular expression")
	searchCmd.Flags().Int64("limit", 0, "max rows per season query (default from config)")
	searchCmd.Flags().String("out", "", "write results to this XLSX file")
	searchCmd.Flags().Bool("json", false, "print JSON instead of a table")
	rootCmd.AddCommand(searchCmd)
}

// formatPlayers writes a tabular list of players to out.
func formatPlayers(out io.Writer, reports []model.PlayerReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSEASON\tNAME\tOVR\tGRADES")
	_, _ = fmt.Fprintln(w, "--\t------\t----\t---\t------")
	for _, p := range reports {
		grades := 0
		if p.Profile.Prices != nil {
			grades = len(p.Profile.Prices.Prices)
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%.0f\t%d\n",
			p.ID,
			p.Season(),
			p.Name,
			p.Abilities.Position.BestOverall,
			grades,
		)
	}
	_ = w.Flush()
}
