package status

import (
	"context"
	"time"

	"blescan/internal/db"
	"blescan/internal/util"
)

type Provider struct {
	// Devices reports the size of the in-memory device table.
	Devices func() int
	// Store is the optional capture database.
	Store *db.Store
	// SessionID identifies the capture session shown in the stats line.
	SessionID int64
}

// Run prints periodic structured status lines to the console.
func Run(ctx context.Context, interval time.Duration, p Provider) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			printOnce(ctx, p)
		}
	}
}

func printOnce(ctx context.Context, p Provider) {
	if p.Devices != nil {
		util.Linef("[DEVICES]", util.ColorCyan, "%d in table", p.Devices())
	}

	// DB stats
	if p.Store != nil {
		st, err := p.Store.GetStatistics(ctx)
		if err == nil {
			util.Linef("[DB STATS]", util.ColorGray, "Session %d, Total Devices: %d, Named: %d, With Services: %d, Advertisements: %d",
				p.SessionID, st.Devices, st.Named, st.WithServices, st.Advertisements)
		}
	}
}
