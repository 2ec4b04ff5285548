// Package version carries build metadata stamped in by the linker:
//
//	go build -ldflags "-X github.com/soyeahso/chatrelay/internal/version.Version=1.0.0
//	  -X github.com/soyeahso/chatrelay/internal/version.Commit=abc123
//	  -X github.com/soyeahso/chatrelay/internal/version.Date=2026-01-01"
package version

import (
	"fmt"
	"runtime"
)

const name = "chatrelay"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info returns a formatted version string.
func Info() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, %s/%s)",
		name, Version, short(Commit), Date, runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies the relay to Google APIs and in the gateway's Server header.
func UserAgent() string {
	return name + "/" + Version
}

func short(s string) string {
	if len(s) > 7 {
		return s[:7]
	}
	return s
}
