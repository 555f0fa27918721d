package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"PumpWatch/internal/backtest"
	"PumpWatch/internal/usecase"
	"PumpWatch/pkg/config"
	"PumpWatch/pkg/logger"
)

const (
	exitNoGo  = 1
	exitError = 2
)

func main() {
	root := &cobra.Command{
		Use:          "backtest",
		Short:        "Replay synthetic market scenarios through the early-warning engines",
		SilenceUsage: true,
	}
	root.AddCommand(runCmd(), scenariosCmd())

	if err := root.Execute(); err != nil {
		os.Exit(exitError)
	}
}

func runCmd() *cobra.Command {
	var (
		configPath string
		fuels      []string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every scenario and evaluate the go/no-go criteria",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			if len(fuels) == 0 {
				fuels = cfg.Backtest.Fuels
			}
			if reportPath == "" {
				reportPath = cfg.Backtest.ReportPath
			}

			log, err := logger.New(&logger.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cfg.Logging.Output,
			})
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}

			runner := usecase.NewBacktestRunner(fuels, reportPath, log)
			report, err := runner.Execute(cmd.Context())
			if err != nil {
				return err
			}

			printReport(report)
			if !report.OverallGo {
				os.Exit(exitNoGo)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yaml", "config file path")
	cmd.Flags().StringSliceVar(&fuels, "fuels", nil, "fuels to evaluate (default from config)")
	cmd.Flags().StringVarP(&reportPath, "report", "r", "", "markdown report path (default from config)")
	return cmd
}

func scenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the synthetic scenarios",
		Run: func(cmd *cobra.Command, args []string) {
			bold := color.New(color.Bold)
			for _, info := range backtest.ListScenarios() {
				bold.Printf("%-10s", info.Name)
				fmt.Printf("  %3d days, %d price changes  %s\n",
					info.Days, info.PriceChanges, info.Description)
			}
		},
	}
}

func printReport(report *backtest.EvaluationReport) {
	pass := color.New(color.FgGreen, color.Bold)
	fail := color.New(color.FgRed, color.Bold)

	mark := func(ok bool) string {
		if ok {
			return pass.Sprint("pass")
		}
		return fail.Sprint("FAIL")
	}

	fmt.Printf("%-10s %-8s  %-8s %-8s %-8s %-8s  %s\n",
		"scenario", "fuel", "capture", "false", "lead", "gap std", "verdict")
	for _, m := range report.Scenarios {
		verdict := pass.Sprint("GO")
		if !m.Go {
			verdict = fail.Sprint("NO-GO")
		}
		fmt.Printf("%-10s %-8s  %-8s %-8s %-8s %-8s  %s\n",
			m.Scenario, m.Fuel,
			m.CaptureRate.String()+" "+mark(m.CapturePass),
			m.FalseAlarmRate.String()+" "+mark(m.FalseAlarmPass),
			m.EarlyWarningDays.String()+" "+mark(m.EarlyWarningPass),
			m.CostGapStd.String()+" "+mark(m.CostGapPass),
			verdict)
	}

	fmt.Println()
	if report.OverallGo {
		pass.Println("Decision: GO")
	} else {
		fail.Println("Decision: NO-GO")
	}
}
