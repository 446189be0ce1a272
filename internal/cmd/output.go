/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/pulsefit/aithrottle/throttle"
)

const noLimit = "-"

func writeStats(w io.Writer, stats throttle.Stats, format string) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}
	renderStatsTable(w, stats)
	return nil
}

// renderStatsTable writes two tables: the quota windows and the limiter state.
func renderStatsTable(w io.Writer, stats throttle.Stats) {
	windows := table.NewWriter()
	windows.SetOutputMirror(w)
	windows.SetStyle(table.StyleRounded)
	windows.SetTitle("Quota windows at " + stats.Time.UTC().Format(time.RFC3339))
	windows.AppendHeader(table.Row{"Window", "Requests", "Tokens", "Resets in"})
	for _, row := range []struct {
		name string
		ws   throttle.WindowStats
	}{{"minute", stats.Minute}, {"day", stats.Day}} {
		windows.AppendRow(table.Row{
			row.name,
			usage(row.ws.Requests, row.ws.RequestsLimit),
			usage(row.ws.Tokens, row.ws.TokensLimit),
			formatDuration(time.Duration(row.ws.ResetsIn)),
		})
	}
	windows.Render()

	state := table.NewWriter()
	state.SetOutputMirror(w)
	state.SetStyle(table.StyleRounded)
	state.AppendHeader(table.Row{"State", "Value"})
	backoff := "off"
	if stats.Backoff.Active {
		backoff = "for " + formatDuration(time.Duration(stats.Backoff.Remaining))
	}
	state.AppendRows([]table.Row{
		{"Backoff", backoff},
		{"Backoff multiplier", strconv.FormatFloat(stats.Backoff.Multiplier, 'f', -1, 64)},
		{"Error streak", stats.ErrorStreak},
		{"Queue length", stats.QueueLength},
		{"In flight", stats.InFlight},
		{"Stopped", stats.Stopped},
	})
	state.AppendSeparator()
	t := stats.Totals
	state.AppendRows([]table.Row{
		{"Submitted", t.Submitted},
		{"Admitted", t.Admitted},
		{"Queued", t.Queued},
		{"Succeeded", t.Succeeded},
		{"Failed", t.Failed},
		{"Rate limited", t.RateLimited},
		{"Requeued", t.Requeued},
		{"Backoffs", t.Backoffs},
		{"Expired", t.Expired},
		{"Canceled", t.Canceled},
		{"Rejected", t.Rejected},
	})
	state.Render()
}

func usage(used, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d / %s", used, noLimit)
	}
	return fmt.Sprintf("%d / %d", used, limit)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(time.Second).String()
}
