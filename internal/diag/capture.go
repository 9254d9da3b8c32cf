package diag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultDir       = "gateway-checks"
	defaultPingCount = 15
	stampLayout      = "2006-01-02-15-04-05"
)

// Dependencies provides optional overrides for testing.
type Dependencies struct {
	Now        func() time.Time
	GOOS       string
	Logger     *log.Logger
	RunCommand func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Capturer records ping traces against the primary gateway and router when
// the link falls off the primary address.
type Capturer struct {
	dir   string
	count int
	now   func() time.Time
	goos  string
	log   *log.Logger
	run   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewCapturer(dir string, deps Dependencies) *Capturer {
	if strings.TrimSpace(dir) == "" {
		dir = DefaultDir
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.GOOS == "" {
		deps.GOOS = runtime.GOOS
	}
	if deps.Logger == nil {
		deps.Logger = log.New(io.Discard, "", 0)
	}
	if deps.RunCommand == nil {
		deps.RunCommand = func(ctx context.Context, name string, args ...string) ([]byte, error) {
			cmd := exec.CommandContext(ctx, name, args...)
			return cmd.CombinedOutput()
		}
	}
	return &Capturer{
		dir:   dir,
		count: defaultPingCount,
		now:   deps.Now,
		goos:  deps.GOOS,
		log:   deps.Logger,
		run:   deps.RunCommand,
	}
}

// Capture pings gateway and router and writes one trace file per target. It
// returns the paths written. A failing ping still produces a file holding
// whatever output the command gave.
func (c *Capturer) Capture(ctx context.Context, gateway, router string) ([]string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure diagnostics directory %q: %w", c.dir, err)
	}

	stamp := c.now().Format(stampLayout)
	targets := []struct {
		name string
		addr string
	}{
		{"gateway", gateway},
		{"router", router},
	}

	var (
		paths []string
		errs  []error
	)
	for _, target := range targets {
		if strings.TrimSpace(target.addr) == "" {
			continue
		}
		path := filepath.Join(c.dir, fmt.Sprintf("%s-Outage-%s.txt", stamp, target.name))
		out, err := c.run(ctx, "ping", c.pingArgs(target.addr)...)
		if err != nil {
			c.log.Printf("diag: ping %s (%s) failed: %v", target.name, target.addr, err)
		}
		if werr := os.WriteFile(path, out, 0o644); werr != nil {
			errs = append(errs, fmt.Errorf("write %s trace %q: %w", target.name, path, werr))
			continue
		}
		paths = append(paths, path)
	}
	return paths, errors.Join(errs...)
}

func (c *Capturer) pingArgs(addr string) []string {
	flag := "-c"
	if c.goos == "windows" {
		flag = "-n"
	}
	return []string{addr, flag, strconv.Itoa(c.count)}
}
