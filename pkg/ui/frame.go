package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/srodi/procwatch/pkg/types"
)

// KeyHelp lists the interactive bindings.
const KeyHelp = "[l] list  [t] tree  [h] home  [q] quit"

// Frame renders one full screen for the interactive driver.
func Frame(r types.Report, interval time.Duration) string {
	var b strings.Builder
	b.WriteString(Banner())
	fmt.Fprintf(&b, "%s%s%s\n", dim, KeyHelp, reset)

	if r.View == types.ViewNone {
		b.WriteString("\nPick a view to start monitoring.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "View: %s | Updated: %s | Refresh: %v\n\n", r.View, r.GeneratedAt.Format(time.RFC3339), interval)
	for _, line := range r.Lines {
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
