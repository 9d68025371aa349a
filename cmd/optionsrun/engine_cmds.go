package main

import (
	"github.com/spf13/cobra"

	"github.com/sawpanic/optionsrun/internal/models"
	"github.com/sawpanic/optionsrun/internal/regime"
)

func newRegimeCmd(opts *globalOptions) *cobra.Command {
	var snapshotPath string

	cmd := &cobra.Command{
		Use:   "regime",
		Short: "Classify the market regime of a snapshot",
		Long:  "Classifies volatility, structure and direction from a market snapshot and lists support, resistance and do-not-trade conditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var snapshot models.MarketSnapshot
			if err := readInput(snapshotPath, cmd.InOrStdin(), &snapshot); err != nil {
				return err
			}

			out, err := opts.engine().Classifier().Analyze(&snapshot)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, out)
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "Market snapshot file (YAML or JSON, - for stdin)")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func newStrategiesCmd(opts *globalOptions) *cobra.Command {
	var snapshotPath, profilePath, regimePath string

	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "Rank option structures for a snapshot and risk profile",
		Long:  "Generates, filters and ranks defined-risk option structures; the regime is classified from the snapshot unless --regime supplies one",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				snapshot models.MarketSnapshot
				profile  models.UserProfile
			)
			if err := readInput(snapshotPath, cmd.InOrStdin(), &snapshot); err != nil {
				return err
			}
			if err := readInput(profilePath, cmd.InOrStdin(), &profile); err != nil {
				return err
			}

			engine := opts.engine()

			var regimeOut *regime.Output
			if regimePath != "" {
				regimeOut = &regime.Output{}
				if err := readInput(regimePath, cmd.InOrStdin(), regimeOut); err != nil {
					return err
				}
			} else {
				var err error
				if regimeOut, err = engine.Classifier().Analyze(&snapshot); err != nil {
					return err
				}
			}

			recs, err := engine.Generator().Generate(&snapshot, regimeOut, &profile)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, recs)
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "Market snapshot file")
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "User risk profile file")
	cmd.Flags().StringVar(&regimePath, "regime", "", "Previously computed regime output (optional)")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}

func newMonitorCmd(opts *globalOptions) *cobra.Command {
	var tradePath, snapshotPath string

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Check an open trade against a fresh snapshot",
		Long:  "Re-classifies the regime from the snapshot and checks the trade for thesis breaks, breaches and exit conditions",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				trade    models.Trade
				snapshot models.MarketSnapshot
			)
			if err := readInput(tradePath, cmd.InOrStdin(), &trade); err != nil {
				return err
			}
			if err := readInput(snapshotPath, cmd.InOrStdin(), &snapshot); err != nil {
				return err
			}

			engine := opts.engine()
			regimeOut, err := engine.Classifier().Analyze(&snapshot)
			if err != nil {
				return err
			}

			current := regimeOut.Regime
			health, err := engine.Monitor().Check(&trade, &snapshot, &current)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, health)
		},
	}

	cmd.Flags().StringVarP(&tradePath, "trade", "t", "", "Open trade file")
	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "Market snapshot file")
	_ = cmd.MarkFlagRequired("trade")
	_ = cmd.MarkFlagRequired("snapshot")
	return cmd
}

func newAutopsyCmd(opts *globalOptions) *cobra.Command {
	var lifecyclePath string

	cmd := &cobra.Command{
		Use:   "autopsy",
		Short: "Review a closed trade",
		Long:  "Compares entry and exit regimes of a closed trade, classifies the primary mistake and derives lessons",
		RunE: func(cmd *cobra.Command, args []string) error {
			var lifecycle models.TradeLifecycle
			if err := readInput(lifecyclePath, cmd.InOrStdin(), &lifecycle); err != nil {
				return err
			}

			report, err := opts.engine().Analyzer().Analyze(&lifecycle)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, report)
		},
	}

	cmd.Flags().StringVarP(&lifecyclePath, "lifecycle", "l", "", "Closed trade lifecycle file")
	_ = cmd.MarkFlagRequired("lifecycle")
	return cmd
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var snapshotPath, profilePath, tradePath, lifecyclePath string

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Produce the combined strategic report",
		Long:  "Runs regime, strategy, and (when supplied) trade monitoring and review, and merges them into one report",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				snapshot models.MarketSnapshot
				profile  models.UserProfile
				trade    *models.Trade
				closed   *models.TradeLifecycle
			)
			if err := readInput(snapshotPath, cmd.InOrStdin(), &snapshot); err != nil {
				return err
			}
			if err := readInput(profilePath, cmd.InOrStdin(), &profile); err != nil {
				return err
			}
			if tradePath != "" {
				trade = &models.Trade{}
				if err := readInput(tradePath, cmd.InOrStdin(), trade); err != nil {
					return err
				}
			}
			if lifecyclePath != "" {
				closed = &models.TradeLifecycle{}
				if err := readInput(lifecyclePath, cmd.InOrStdin(), closed); err != nil {
					return err
				}
			}

			out, err := opts.engine().GenerateAnalysis(&snapshot, &profile, trade, closed)
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), opts.output, out)
		},
	}

	cmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "Market snapshot file")
	cmd.Flags().StringVarP(&profilePath, "profile", "p", "", "User risk profile file")
	cmd.Flags().StringVarP(&tradePath, "trade", "t", "", "Open trade file (optional)")
	cmd.Flags().StringVarP(&lifecyclePath, "lifecycle", "l", "", "Closed trade lifecycle file (optional)")
	_ = cmd.MarkFlagRequired("snapshot")
	_ = cmd.MarkFlagRequired("profile")
	return cmd
}
