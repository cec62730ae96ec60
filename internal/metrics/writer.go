package metrics

// Benchmark output (CSV/JSON) and summary formatting

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

var csvHeader = []string{"Count", "Time [ms]", "Data transfer speed [kB/s]"}

// WriteCSV writes the samples as ';' separated records followed by the
// summary text.
func WriteCSV(path string, samples []Sample, summary *Summary) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create CSV file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = ';'
	if err := w.Write(csvHeader); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for _, s := range samples {
		if s.Error != "" {
			continue
		}
		record := []string{
			strconv.Itoa(s.Index),
			strconv.FormatFloat(s.Millis(), 'f', 1, 64),
			strconv.FormatFloat(s.Speed(), 'f', 1, 64),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush CSV: %w", err)
	}

	if summary != nil && summary.Count > 0 {
		if _, err := fmt.Fprintf(file, "\n%s", FormatSummary(summary)); err != nil {
			return fmt.Errorf("write CSV summary: %w", err)
		}
	}
	return file.Close()
}

// WriteJSON writes the samples and summary as an indented JSON document.
func WriteJSON(path string, samples []Sample, summary *Summary) error {
	doc := struct {
		Summary *Summary `json:"summary"`
		Samples []Sample `json:"samples"`
	}{summary, samples}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write JSON: %w", err)
	}
	return nil
}

// FormatSummary formats a summary for human-readable output
func FormatSummary(summary *Summary) string {
	if summary.Count == 0 {
		return "No successful measurements.\n"
	}
	buf := fmt.Sprintf("Minimal time %.1f ms, maximal time %.1f ms, block size %d bytes.\n",
		summary.MinMs, summary.MaxMs, summary.BlockSize)
	buf += fmt.Sprintf("Minimal speed %.1f kB/s, average speed: %.1f kB/s.\n",
		summary.MinSpeed, summary.AvgSpeed)
	buf += fmt.Sprintf("Reads: %d (P50 %.1f ms, P90 %.1f ms, P99 %.1f ms)",
		summary.Count, summary.P50Ms, summary.P90Ms, summary.P99Ms)
	if summary.Failed > 0 {
		buf += fmt.Sprintf(", %d failed", summary.Failed)
	}
	return buf + "\n"
}
