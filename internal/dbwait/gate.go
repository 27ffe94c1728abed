// Package dbwait blocks bootstrap until the database accepts connections.
package dbwait

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// Prober reports whether the database is ready to accept connections.
type Prober interface {
	Probe(ctx context.Context) error
}

// CommandProber probes readiness through the database engine's own client
// tool, so the gate needs no driver for the target engine.
type CommandProber struct {
	DB config.DatabaseConfig
}

// Probe runs one readiness check. A non-zero exit means not ready.
func (p CommandProber) Probe(ctx context.Context) error {
	name, args, err := p.command()
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", name, err, string(out))
	}
	return nil
}

func (p CommandProber) command() (string, []string, error) {
	switch p.DB.Engine {
	case "postgresql":
		return "pg_isready", []string{
			"-h", p.DB.Host,
			"-p", p.DB.Port,
			"-U", p.DB.User,
			"-d", p.DB.Name,
		}, nil
	case "mysql":
		return "mysqladmin", []string{
			"ping",
			"-h", p.DB.Host,
			"-P", p.DB.Port,
			"-u", p.DB.User,
			"--silent",
		}, nil
	default:
		return "", nil, fmt.Errorf("unsupported database engine %q", p.DB.Engine)
	}
}

// Gate polls a Prober with a bounded retry budget and a fixed interval.
// No backoff, no jitter: one probe per interval until the budget runs out.
type Gate struct {
	Prober   Prober
	Attempts int
	Interval time.Duration
	Log      *zap.SugaredLogger

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGate builds a Gate from the database config.
func NewGate(db config.DatabaseConfig, log *zap.SugaredLogger) *Gate {
	return &Gate{
		Prober:   CommandProber{DB: db},
		Attempts: db.WaitAttempts,
		Interval: db.WaitInterval,
		Log:      log,
	}
}

// Wait blocks until a probe succeeds or the retry budget is exhausted.
func (g *Gate) Wait(ctx context.Context) error {
	sleep := g.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var lastErr error
	for attempt := 1; attempt <= g.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = g.Prober.Probe(ctx)
		if lastErr == nil {
			g.Log.Infof("database ready after %d attempt(s)", attempt)
			return nil
		}

		g.Log.Debugf("database not ready (attempt %d/%d): %v", attempt, g.Attempts, lastErr)
		if attempt < g.Attempts {
			if err := sleep(ctx, g.Interval); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("database not reachable after %d attempts: %w", g.Attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
