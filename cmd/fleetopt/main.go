// Command fleetopt runs the fleet utilization optimizer once from the command
// line, without starting the HTTP service.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/axion-mining/fleet-optimizer/internal/application"
	"github.com/axion-mining/fleet-optimizer/internal/config"
	"github.com/axion-mining/fleet-optimizer/internal/logging"
	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
	"github.com/axion-mining/fleet-optimizer/internal/report"
	"github.com/axion-mining/fleet-optimizer/internal/routes"
)

const (
	formatSummary = "summary"
	formatJSON    = "json"
	formatCSV     = "csv"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "fleetopt:", err)
		os.Exit(1)
	}
}

type runFlags struct {
	params     string
	format     string
	reportKind string
	strategy   string
	jitter     float64
	seed       uint64
	solverURL  string
	timeout    time.Duration
	logLevel   string
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	app := kingpin.New("fleetopt", "Fleet Utilization Optimizer - offline runs against the route catalog")
	app.UsageWriter(stdout)
	app.Terminate(nil)

	var f runFlags
	runCmd := app.Command("run", "Optimize a planning horizon and print the results").Default()
	runCmd.Flag("params", "JSON or YAML parameters file (defaults to the reference month)").StringVar(&f.params)
	runCmd.Flag("format", "Output format").Default(formatSummary).EnumVar(&f.format, formatSummary, formatJSON, formatCSV)
	runCmd.Flag("report", "Table written in csv format").Default(string(report.KindUtilization)).
		EnumVar(&f.reportKind, string(report.KindUtilization), string(report.KindAllocations))
	runCmd.Flag("strategy", "Local allocation strategy").Default(string(optimizer.StrategyBlend)).
		EnumVar(&f.strategy, string(optimizer.StrategyBlend), string(optimizer.StrategyProportional))
	runCmd.Flag("jitter", "Relative spread applied to each allocation (0 disables)").Default("0").Float64Var(&f.jitter)
	runCmd.Flag("seed", "Seed for the jitter source").Default("0").Uint64Var(&f.seed)
	runCmd.Flag("solver-url", "Use the external solver at this URL instead of the local engine").StringVar(&f.solverURL)
	runCmd.Flag("timeout", "Solver request timeout").Default("90s").DurationVar(&f.timeout)
	runCmd.Flag("log-level", "Log level (debug, info, warn, error)").Default("warn").StringVar(&f.logLevel)

	routesCmd := app.Command("routes", "List the route catalog with effective yields")

	cmd, err := app.Parse(args)
	if err != nil {
		return err
	}

	switch cmd {
	case routesCmd.FullCommand():
		return printRoutes(stdout, routes.Default())
	case runCmd.FullCommand():
		return runOptimize(ctx, f, stdout)
	}
	return nil
}

func runOptimize(ctx context.Context, f runFlags, stdout io.Writer) error {
	logger, err := logging.New(f.logLevel)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	params := optimizer.DefaultParameters()
	if f.params != "" {
		if params, err = config.LoadParameters(f.params); err != nil {
			return err
		}
	}

	cfg := config.Config{
		Solver: config.SolverConfig{Mode: config.SolverLocal},
		Engine: config.EngineConfig{Strategy: f.strategy, Jitter: f.jitter, Seed: f.seed},
	}
	if f.solverURL != "" {
		cfg.Solver = config.SolverConfig{Mode: config.SolverRemote, URL: f.solverURL, Timeout: f.timeout, MaxAttempts: 3}
	}

	opt, err := application.NewOptimizer(cfg, routes.Default(), logger)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := opt.Optimize(ctx, params)
	if err != nil {
		return err
	}
	logger.Info("optimization completed",
		zap.String("mode", cfg.Solver.Mode),
		zap.String("status", res.Status),
		zap.Duration("duration", time.Since(start)),
	)

	switch f.format {
	case formatJSON:
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	case formatCSV:
		return report.WriteCSV(stdout, res, report.Kind(f.reportKind))
	default:
		return printSummary(stdout, res)
	}
}

func printSummary(w io.Writer, res optimizer.Results) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", res.Status)
	fmt.Fprintf(tw, "Objective (sum of deviations):\t%s%%\n", report.Percent(res.ObjectiveValue))
	fmt.Fprintf(tw, "Average utilization:\t%s%%\n", report.Percent(res.AvgUtilization))
	fmt.Fprintln(tw)

	tonnage := make(map[optimizer.Period]float64, len(res.DailyTonnage))
	for _, t := range res.DailyTonnage {
		tonnage[t.Period] = t.Tonnage
	}
	fmt.Fprintln(tw, "Day\tReal %\tTarget %\tDeviation %\tTonnage")
	for _, u := range res.UtilizationSummary {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			u.Period, report.Percent(u.RealUtilization), report.Percent(u.TargetUtilization),
			report.Percent(u.Deviation), report.Tons(tonnage[u.Period]))
	}
	return tw.Flush()
}

func printRoutes(w io.Writer, catalog *routes.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Route\tCycle (h)\tPayload (t)\tBudget (t)\tYield (t/h)")
	for _, r := range catalog.Routes() {
		fmt.Fprintf(tw, "%s\t%.3f\t%s\t%s\t%.2f\n", r.ID(), r.CycleHours, report.Tons(r.Payload), report.Tons(r.Budget), r.Yield)
	}
	return tw.Flush()
}
