package feed

import (
	"fmt"
	"time"
)

// FormatLatency renders the delay between message creation and local
// receipt, coarsening the unit as the delay grows.
func FormatLatency(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := d.Seconds()
	switch {
	case secs >= 3600:
		return fmt.Sprintf("(+%.1fh)", secs/3600)
	case secs >= 300:
		return fmt.Sprintf("(+%.0fm)", secs/60)
	case secs >= 10:
		return fmt.Sprintf("(+%.0fs)", secs)
	case secs >= 1:
		return fmt.Sprintf("(+%.1fs)", secs)
	}
	return fmt.Sprintf("(+%dms)", d.Milliseconds())
}
