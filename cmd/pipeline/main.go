// Command pipeline trains and forecasts from the command line, and loads
// exported tap-in CSV files into the ridership database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"

	"github.com/irfndi/transit-flow/internal/app"
	"github.com/irfndi/transit-flow/internal/config"
	"github.com/irfndi/transit-flow/internal/csvsource"
	"github.com/irfndi/transit-flow/internal/forecast"
	"github.com/irfndi/transit-flow/internal/logging"
	"github.com/irfndi/transit-flow/internal/models"
	"github.com/irfndi/transit-flow/internal/pipeline"
	"github.com/irfndi/transit-flow/internal/telemetry"
	"github.com/irfndi/transit-flow/internal/training"
	"github.com/irfndi/transit-flow/internal/tuning"
)

const usage = `usage: pipeline <command> [flags]

commands:
  train      train and store a model
  forecast   print a recursive forecast
  import     copy flow.csv tap-ins into the ridership_events table
`

// DefaultImportBatch keeps a single insert well under the 65535 parameter limit
const DefaultImportBatch = 1000

var errUsage = errors.New("invalid usage")

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return errUsage
	}
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := logging.NewWithOutput(cfg.LogLevel, cfg.Environment, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: cfg.Environment,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	a, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer a.Close()

	return execute(ctx, a, args, os.Stdout)
}

func execute(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "train":
		return runTrain(ctx, a, args[1:], out)
	case "forecast":
		return runForecast(ctx, a, args[1:], out)
	case "import":
		return runImport(ctx, a, args[1:], out)
	case "help", "-h", "--help":
		fmt.Fprint(out, usage)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func runTrain(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("train", out)
	model := fs.String("model", a.Config.Training.ModelName, "model name")
	station := fs.String("station", "", "train the model of one station instead")
	tune := fs.Bool("tune", a.Config.Training.Tune, "run the hyperparameter search first")
	ratio := fs.Float64("ratio", 0, "training share of the history (default from config)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	opts := pipeline.TrainOptions{Tune: tune, TrainRatio: *ratio}
	var (
		outcome *pipeline.TrainOutcome
		err     error
	)
	if *station != "" {
		outcome, err = a.Pipeline.TrainStation(ctx, *station, opts)
	} else {
		outcome, err = a.Pipeline.Train(ctx, *model, opts)
	}
	if err != nil {
		return err
	}
	return printJSON(out, trainSummary{
		RunID:        outcome.RunID,
		Model:        outcome.Model.Name,
		TrainingRows: outcome.Model.TrainingRows,
		Records:      outcome.Records,
		Gaps:         outcome.Gaps,
		Metrics:      outcome.Model.Metrics,
		Tuning:       outcome.Tuning,
	})
}

type trainSummary struct {
	RunID        string          `json:"run_id"`
	Model        string          `json:"model"`
	TrainingRows int             `json:"training_rows"`
	Records      int             `json:"records"`
	Gaps         int             `json:"gaps"`
	Metrics      training.Report `json:"metrics"`
	Tuning       *tuning.Result  `json:"tuning,omitempty"`
}

func runForecast(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("forecast", out)
	model := fs.String("model", a.Config.Training.ModelName, "model name")
	station := fs.String("station", "", "forecast one station with its own model")
	horizon := fs.Int("horizon", a.Config.Forecast.Horizon, "number of days to forecast")
	start := fs.String("start", a.Config.Forecast.Start, "first forecast day, YYYY-MM-DD (default: first unknown day)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	req := forecast.Request{Horizon: *horizon}
	if *start != "" {
		day, err := time.Parse(config.DateLayout, *start)
		if err != nil {
			return fmt.Errorf("%w: invalid -start: %v", errUsage, err)
		}
		req.Start = day
	}

	var (
		result *models.ForecastResult
		err    error
	)
	if *station != "" {
		result, err = a.Pipeline.ForecastStation(ctx, *station, req)
	} else {
		result, err = a.Pipeline.ForecastDayFlow(ctx, *model, req)
	}
	if err != nil {
		return err
	}
	return printJSON(out, result)
}

func runImport(ctx context.Context, a *app.App, args []string, out io.Writer) error {
	fs := newFlagSet("import", out)
	dir := fs.String("dir", a.Config.Source.CSVDir, "directory holding flow.csv")
	encoding := fs.String("encoding", a.Config.Source.CSVEncoding, "file encoding: utf-8 or gb18030")
	batch := fs.Int("batch", DefaultImportBatch, "rows per insert")
	from := fs.String("from", "", "first day to import, YYYY-MM-DD")
	to := fs.String("to", "", "last day to import, YYYY-MM-DD")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if a.Repository == nil {
		return errors.New("import needs source.kind=postgres")
	}
	if *batch < 1 {
		return fmt.Errorf("%w: -batch must be positive", errUsage)
	}
	fromDay, toDay, err := config.TrainingConfig{HistoryFrom: *from, HistoryTo: *to}.HistoryRange()
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	events, err := csvsource.New(csvsource.Options{Dir: *dir, Encoding: *encoding}).Events(ctx, fromDay, toDay)
	if err != nil {
		return err
	}

	var written int64
	for lo := 0; lo < len(events); lo += *batch {
		hi := min(lo+*batch, len(events))
		n, err := a.Repository.RecordEvents(ctx, events[lo:hi])
		if err != nil {
			return fmt.Errorf("import stopped after %d rows: %w", written, err)
		}
		written += n
	}
	a.Logger.WithField("rows", written).Info("Tap-in events imported")
	return printJSON(out, map[string]int64{"read": int64(len(events)), "written": written})
}

func printJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
