// Package banner prints the startup banner.
package banner

import (
	"fmt"
	"io"
)

// Version is overridden at build time with -ldflags "-X courier-go/internal/banner.Version=...".
var Version = "1.0.0"

// Print writes the banner for the given role to w.
func Print(w io.Writer, role string) {
	banner := `
   _________  __  _______  ________  _____
  / ___/ __ \/ / / / ___/ / / ____/ / ___/
 / /__/ /_/ / /_/ / /    / / __/   / /
 \___/\____/\__,_/_/    /_/____/  /_/
            v%s - %s
    `
	fmt.Fprintf(w, banner, Version, role)
	fmt.Fprintln(w, "\n------------------------------------------------")
}
