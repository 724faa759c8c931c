package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fedragon/go-neardup/internal/models"
)

func summarize(result models.ScanResult) string {
	return fmt.Sprintf("Scan %v (%v): %v assets scanned, %v duplicate groups",
		result.ScanID,
		result.ScanDate.Format("2006-01-02 15:04:05"),
		result.TotalAssetsScanned,
		len(result.Groups))
}

func printJSON(w io.Writer, result models.ScanResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

// renderGroups lays out one row per asset, with the group columns filled in
// only on the first row of each group.
func renderGroups(groups []models.DuplicateGroup) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "SIMILARITY", "CONFIDENCE", "ASSET", "DIMENSIONS", "DURATION"})

	for i, group := range groups {
		for j, item := range group.Items {
			row := table.Row{"", "", "", item.Asset.ID, item.Dimensions, item.DurationLabel}
			if j == 0 {
				row[0] = i + 1
				row[1] = strings.ToUpper(string(group.Similarity))
				row[2] = fmt.Sprintf("%.2f", group.Confidence)
			}
			tw.AppendRow(row)
		}
		if i < len(groups)-1 {
			tw.AppendSeparator()
		}
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	return tw.Render()
}
