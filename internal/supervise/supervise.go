// Package supervise decides and performs the terminal process hand-off:
// the bootstrap binary replaces itself with the process supervisor, or with
// an operator-supplied override command.
package supervise

import (
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/dsmrreader/dsmr-bootstrap/internal/config"
)

// Kind distinguishes the two hand-off targets.
type Kind string

const (
	KindSupervisor Kind = "supervisor"
	KindOverride   Kind = "override"
)

// Decision is the resolved hand-off: which argv replaces the bootstrap
// process. Deciding has no side effects so it stays testable; Exec performs
// the actual replacement.
type Decision struct {
	Kind Kind
	Argv []string
}

// Decide resolves the hand-off target from the supervisor config. A
// non-empty override wins over the supervisor command.
func Decide(cfg config.SupervisorConfig) (Decision, error) {
	if override := strings.TrimSpace(cfg.Override); override != "" {
		argv := strings.Fields(override)
		return Decision{Kind: KindOverride, Argv: argv}, nil
	}

	if len(cfg.Command) == 0 {
		return Decision{}, fmt.Errorf("no supervisor command configured")
	}
	return Decision{Kind: KindSupervisor, Argv: cfg.Command}, nil
}

// Exec replaces the current process with the decided command. On success it
// never returns; cleanup responsibilities pass to the new process.
func (d Decision) Exec() error {
	path, err := exec.LookPath(d.Argv[0])
	if err != nil {
		return fmt.Errorf("resolving %s: %w", d.Argv[0], err)
	}
	if err := unix.Exec(path, d.Argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}
