package version

import (
	"encoding/json"
	"fmt"
	"io"
)

// Set through -ldflags "-X github.com/pingsantohq/wanwatch/internal/version.Release=...".
var (
	Release   = "0.0.0"
	BuildDate = "UNKNOWN"
	GitHash   = "UNKNOWN"
)

type Info struct {
	Release   string
	BuildDate string
	GitHash   string
}

func Current() Info {
	return Info{Release: Release, BuildDate: BuildDate, GitHash: GitHash}
}

func Print(w io.Writer) {
	if err := json.NewEncoder(w).Encode(Current()); err != nil {
		fmt.Fprintf(w, "error while encoding version info: %v\n", err)
	}
}
