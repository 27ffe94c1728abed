package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/bootstrap"
	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
	"github.com/dsmrreader/dsmr-bootstrap/internal/datalogger"
	"github.com/dsmrreader/dsmr-bootstrap/internal/dbwait"
	"github.com/dsmrreader/dsmr-bootstrap/internal/django"
	"github.com/dsmrreader/dsmr-bootstrap/internal/journal"
	"github.com/dsmrreader/dsmr-bootstrap/internal/logging"
	"github.com/dsmrreader/dsmr-bootstrap/internal/nginx"
	"github.com/dsmrreader/dsmr-bootstrap/internal/supervise"
)

var (
	journalLimit int
	journalRun   string
)

func init() {
	appCmd := &cobra.Command{
		Use:   "app",
		Short: "Bootstrap the full application container and exec the supervisor",
		RunE:  runApp,
	}
	rootCmd.AddCommand(appCmd)

	dataloggerCmd := &cobra.Command{
		Use:   "datalogger",
		Short: "Bootstrap a remote datalogger container",
		RunE:  runDatalogger,
	}
	rootCmd.AddCommand(dataloggerCmd)

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the environment and probe the database, then exit",
		RunE:  runCheck,
	}
	rootCmd.AddCommand(checkCmd)

	journalCmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recorded bootstrap runs",
		RunE:  runJournal,
	}
	journalCmd.Flags().IntVar(&journalLimit, "limit", 10, "number of runs to show")
	journalCmd.Flags().StringVar(&journalRun, "run", "", "show the steps of one run")
	rootCmd.AddCommand(journalCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// journalRecorder bridges the pipeline to the journal. Recording is
// best-effort: failures are logged and swallowed.
type journalRecorder struct {
	journal *journal.Journal
	runID   string
	log     *zap.SugaredLogger
}

func (r *journalRecorder) RecordStep(name, status string, took time.Duration, errMsg string) {
	if err := r.journal.RecordStep(r.runID, name, status, took, errMsg); err != nil {
		r.log.Warnf("journal: recording step %s: %v", name, err)
	}
}

// openJournal opens the journal and begins a run. Any failure downgrades to
// a nil recorder so the bootstrap itself is never blocked by the journal.
func openJournal(cfg *config.Config, flavor config.Flavor, log *zap.SugaredLogger) (*journal.Journal, *journalRecorder) {
	if !cfg.Journal.Enabled {
		return nil, nil
	}
	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		log.Warnf("journal: %v", err)
		return nil, nil
	}
	runID, err := j.BeginRun(string(flavor))
	if err != nil {
		log.Warnf("journal: %v", err)
		j.Close()
		return nil, nil
	}
	return j, &journalRecorder{journal: j, runID: runID, log: log}
}

func finishJournal(j *journal.Journal, rec *journalRecorder, status string, log *zap.SugaredLogger) {
	if j == nil {
		return
	}
	if err := j.FinishRun(rec.runID, status); err != nil {
		log.Warnf("journal: %v", err)
	}
	j.Close()
}

func runApp(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Debug)
	defer log.Sync()

	if err := cfg.Validate(config.FlavorApp); err != nil {
		log.Errorf("environment validation failed: %v", err)
		return err
	}

	j, rec := openJournal(cfg, config.FlavorApp, log)

	ctx := context.Background()
	p := bootstrap.New(log, recorderOrNil(rec))

	if cfg.Device.Wait {
		p.Add("wait-for-device", func(ctx context.Context) error {
			return bootstrap.WaitForDevice(ctx, cfg.Device.Path, cfg.Device.WaitTimeout)
		})
	}
	p.Add("fix-device-permissions", func(ctx context.Context) error {
		return bootstrap.FixDevicePermissions(cfg.Device, log)
	})
	p.Add("wait-for-database", func(ctx context.Context) error {
		return dbwait.NewGate(cfg.Database, log).Wait(ctx)
	})
	p.Add("django-post-config", func(ctx context.Context) error {
		pc := &django.PostConfig{
			Runner: django.ExecRunner{},
			Django: cfg.Django,
			Admin:  cfg.Admin,
			Log:    log,
		}
		return pc.Run(ctx)
	})
	p.Add("nginx-tls", func(ctx context.Context) error {
		c := &nginx.TLSConfigurator{
			Nginx:     cfg.Nginx,
			Validator: nginx.CommandValidator{Binary: cfg.Nginx.Binary},
			Log:       log,
		}
		return c.Apply(ctx)
	})
	p.Add("nginx-basic-auth", func(ctx context.Context) error {
		c := &nginx.AuthConfigurator{
			Nginx:     cfg.Nginx,
			Validator: nginx.CommandValidator{Binary: cfg.Nginx.Binary},
			Log:       log,
		}
		return c.Apply(ctx)
	})

	if err := p.Run(ctx); err != nil {
		finishJournal(j, rec, "failed", log)
		return err
	}

	decision, err := supervise.Decide(cfg.Supervisor)
	if err != nil {
		finishJournal(j, rec, "failed", log)
		return err
	}

	// The journal must be flushed before exec: the replacing process never
	// returns control to us.
	finishJournal(j, rec, "completed", log)

	switch decision.Kind {
	case supervise.KindOverride:
		log.Infof("handing off to override command: %v", decision.Argv)
	default:
		log.Infof("handing off to supervisor: %v", decision.Argv)
	}
	log.Sync()
	return decision.Exec()
}

func runDatalogger(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Debug)
	defer log.Sync()

	if err := cfg.Validate(config.FlavorDatalogger); err != nil {
		log.Errorf("environment validation failed: %v", err)
		return err
	}

	j, rec := openJournal(cfg, config.FlavorDatalogger, log)

	p := bootstrap.New(log, recorderOrNil(rec))
	if cfg.Device.Wait {
		p.Add("wait-for-device", func(ctx context.Context) error {
			return bootstrap.WaitForDevice(ctx, cfg.Device.Path, cfg.Device.WaitTimeout)
		})
	}
	p.Add("fix-device-permissions", func(ctx context.Context) error {
		return bootstrap.FixDevicePermissions(cfg.Device, log)
	})
	p.Add("write-datalogger-env", func(ctx context.Context) error {
		return datalogger.WriteFile(cfg.Datalogger)
	})

	if err := p.Run(context.Background()); err != nil {
		finishJournal(j, rec, "failed", log)
		return err
	}

	finishJournal(j, rec, "completed", log)
	log.Infof("datalogger bootstrap complete, env file at %s", cfg.Datalogger.EnvFile)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.New(cfg.Debug)
	defer log.Sync()

	if err := cfg.Validate(config.FlavorApp); err != nil {
		log.Errorf("environment validation failed: %v", err)
		return err
	}
	if err := dbwait.NewGate(cfg.Database, log).Wait(context.Background()); err != nil {
		return err
	}
	fmt.Println("ok")
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	j, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if journalRun != "" {
		steps, err := j.ListSteps(journalRun)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "STEP\tSTATUS\tDURATION\tERROR")
		for _, s := range steps {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, s.Status, s.Duration, s.Error)
		}
		return nil
	}

	runs, err := j.ListRuns(journalLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "ID\tFLAVOR\tSTATUS\tSTARTED\tTOOK")
	for _, run := range runs {
		took := "-"
		if run.FinishedAt != nil {
			took = run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.Flavor, run.Status, humanize.Time(run.StartedAt), took)
	}
	return nil
}

func recorderOrNil(rec *journalRecorder) bootstrap.Recorder {
	if rec == nil {
		return nil
	}
	return rec
}
