package deployments

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/skydeck-host/skydeck/pkg/logger"
)

// NpmInstaller resolves dependencies by running npm in the application
// directory.
type NpmInstaller struct {
	timeout time.Duration
	log     *logger.Logger
}

var _ Installer = (*NpmInstaller)(nil)

// NewNpmInstaller creates an installer with a per-invocation timeout.
func NewNpmInstaller(timeout time.Duration, log *logger.Logger) *NpmInstaller {
	if log == nil {
		log = logger.NewDefault("npm")
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &NpmInstaller{timeout: timeout, log: log}
}

// Install runs `npm install` with production-only, quiet flags.
func (n *NpmInstaller) Install(ctx context.Context, dir string) error {
	if _, err := exec.LookPath("npm"); err != nil {
		return fmt.Errorf("npm not available: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "npm", "install", "--omit=dev", "--no-audit", "--no-fund")
	cmd.Dir = dir

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("npm install: %w: %s", err, tail(output, 2048))
	}
	n.log.WithField("dir", dir).Debugf("npm install finished in %s", time.Since(start).Round(time.Millisecond))
	return nil
}

// tail returns at most n trailing bytes of output, where the useful npm
// error usually lives.
func tail(output []byte, n int) []byte {
	if len(output) <= n {
		return output
	}
	return output[len(output)-n:]
}

// NoopInstaller skips dependency resolution entirely.
type NoopInstaller struct{}

var _ Installer = NoopInstaller{}

// Install is a no-op.
func (NoopInstaller) Install(context.Context, string) error { return nil }
