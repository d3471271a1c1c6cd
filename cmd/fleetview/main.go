// Command fleetview is a terminal operational dashboard: it polls the
// broker's /snapshot introspection endpoint (internal/obshttp) and renders
// connected validators, pending action count, and per-subscriber lagged
// drops — a lightweight operational counterpart to a full web dashboard.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
)

type snapshot struct {
	ConnectedIDs             []string          `json:"connected_ids"`
	PendingCount             int               `json:"pending_count"`
	LaggedDropsPerSubscriber map[string]uint64 `json:"lagged_drops_per_subscriber"`
	OrphanResults            uint64            `json:"orphan_results"`
}

func main() {
	addr := envOr("FLEETVIEW_BROKER_OBS_ADDR", "http://localhost:7071")
	interval := 2 * time.Second

	if err := termui.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "fleetview: failed to initialize termui: %v\n", err)
		os.Exit(1)
	}
	defer termui.Close()

	grid := termui.NewGrid()
	termWidth, termHeight := termui.TerminalDimensions()
	grid.SetRect(0, 0, termWidth, termHeight)

	title := widgets.NewParagraph()
	title.Title = "fleetview"
	title.Text = fmt.Sprintf("polling %s every %s — q to quit", addr, interval)
	title.TextStyle.Fg = termui.ColorGreen
	title.Border = true

	connected := widgets.NewList()
	connected.Title = "Connected Validators"
	connected.Rows = []string{"(no data yet)"}

	stats := widgets.NewParagraph()
	stats.Title = "Control Plane"
	stats.Text = "waiting for first poll..."

	grid.Set(
		termui.NewRow(1.0/6,
			termui.NewCol(1.0, title),
		),
		termui.NewRow(5.0/6,
			termui.NewCol(1.0/2, connected),
			termui.NewCol(1.0/2, stats),
		),
	)
	termui.Render(grid)

	client := &http.Client{Timeout: 3 * time.Second}
	refresh := func() {
		snap, err := fetchSnapshot(client, addr)
		if err != nil {
			stats.Text = fmt.Sprintf("poll failed: %v", err)
			termui.Render(grid)
			return
		}
		applySnapshot(connected, stats, snap)
		termui.Render(grid)
	}
	refresh()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	uiEvents := termui.PollEvents()
	for {
		select {
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				return
			case "<Resize>":
				payload := e.Payload.(termui.Resize)
				grid.SetRect(0, 0, payload.Width, payload.Height)
				termui.Render(grid)
			}
		case <-ticker.C:
			refresh()
		}
	}
}

func fetchSnapshot(client *http.Client, addr string) (snapshot, error) {
	resp, err := client.Get(addr + "/snapshot")
	if err != nil {
		return snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snapshot{}, fmt.Errorf("broker returned %d", resp.StatusCode)
	}
	var s snapshot
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return snapshot{}, err
	}
	return s, nil
}

// applySnapshot updates the two widgets in place from snap; it does not
// render — callers render once after mutating both widgets.
func applySnapshot(connected *widgets.List, stats *widgets.Paragraph, snap snapshot) {
	ids := append([]string(nil), snap.ConnectedIDs...)
	sort.Strings(ids)
	if len(ids) == 0 {
		connected.Rows = []string{"(none connected)"}
	} else {
		connected.Rows = ids
	}

	text := fmt.Sprintf("pending_actions: %d\norphan_results: %d\n\nlagged_drops:\n",
		snap.PendingCount, snap.OrphanResults)
	subs := make([]string, 0, len(snap.LaggedDropsPerSubscriber))
	for sub := range snap.LaggedDropsPerSubscriber {
		subs = append(subs, sub)
	}
	sort.Strings(subs)
	for _, sub := range subs {
		text += fmt.Sprintf("  %s: %d\n", sub, snap.LaggedDropsPerSubscriber[sub])
	}
	stats.Text = text
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
