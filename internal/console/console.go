// Package console draws the operator status view between poll cycles.
package console

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/fatih/color"
)

const clearScreen = "\033[H\033[2J"

const banner = `
 __      __            __      __         __         .__
/  \    /  \_____    _/  \    /  \_____ _/  |_  ____ |  |__
\   \/\/   /\__  \  /    \/\/   /\__  \\   __\/ ___\|  |  \
 \        /  / __ \/          /  / __ \|  | \  \___|   Y  \
  \__/\  /  (____  /\__/\  /  (____  /|__|  \___  >___|  /
       \/        \/      \/        \/           \/     \/
`

// Status is what one frame of the view shows.
type Status struct {
	Version  string
	TestMode bool
	Provider string
	IP       string

	// Remediation is set while the address is off the primary and an outlet
	// is configured.
	Remediation  bool
	ResetIn      time.Duration
	LimitReached bool

	NextCheck time.Duration
	LastLog   string
}

type Renderer interface {
	Render(Status)
}

type discard struct{}

func (discard) Render(Status) {}

// Discard renders nothing.
var Discard Renderer = discard{}

// ANSI clears the terminal and redraws the view on every call.
type ANSI struct {
	mu sync.Mutex
	w  io.Writer

	banner  *color.Color
	alert   *color.Color
	address *color.Color
	warn    *color.Color
}

func NewANSI(w io.Writer) *ANSI {
	return &ANSI{
		w:       w,
		banner:  color.New(color.FgCyan),
		alert:   color.New(color.BgRed, color.FgWhite),
		address: color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
	}
}

func (a *ANSI) Render(s Status) {
	a.mu.Lock()
	defer a.mu.Unlock()

	fmt.Fprint(a.w, clearScreen)
	a.banner.Fprintln(a.w, banner)
	if s.TestMode {
		a.alert.Fprintln(a.w, "TEST MODE!")
	}
	fmt.Fprintf(a.w, "VERSION: %s\n", s.Version)
	fmt.Fprintf(a.w, "PROVIDER: %s\n", s.Provider)
	fmt.Fprintf(a.w, "WAN ADDRESS: %s\n", a.address.Sprint(s.IP))
	if s.Remediation {
		if s.LimitReached {
			a.warn.Fprintln(a.w, "Outlet reset limit has been reached.")
		} else {
			a.warn.Fprintf(a.w, "Seconds until outlet reset is %d\n", seconds(s.ResetIn))
		}
	}
	fmt.Fprintf(a.w, "Next check in %d seconds\n", seconds(s.NextCheck))
	if s.LastLog != "" {
		fmt.Fprintf(a.w, "\nLatest Log Entry Below:\n%s\n", s.LastLog)
	}
}

// seconds rounds up so a countdown never shows 0 before it expires.
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

var _ Renderer = (*ANSI)(nil)
