// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
)

// Export formats.
const (
	ExportJSON = "json"
	ExportCSV  = "csv"
	ExportText = "txt"
	ExportHTML = "html"
)

var csvHeader = []string{"time", "timestamp", "kind", "severity", "message", "file", "line", "client", "raw"}

// Export writes entries as json, csv, or txt.
func Export(w io.Writer, entries []Entry, format string) error {
	switch format {
	case ExportJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if entries == nil {
			entries = []Entry{}
		}
		return encoder.Encode(entries)
	case ExportCSV:
		writer := csv.NewWriter(w)
		if err := writer.Write(csvHeader); err != nil {
			return err
		}
		for _, entry := range entries {
			var when, line string
			if !entry.Time.IsZero() {
				when = entry.Time.Format(time.RFC3339)
			}
			if entry.Line > 0 {
				line = strconv.Itoa(entry.Line)
			}
			if err := writer.Write([]string{when, entry.Timestamp, entry.Kind, entry.Severity,
				entry.Message, entry.File, line, entry.Client, entry.Raw}); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	case ExportText:
		for _, entry := range entries {
			if _, err := fmt.Fprintln(w, FormatEntry(entry)); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown export format %q (want json, csv, or txt)", format)
}

// FormatEntry renders one entry as "[timestamp] [severity] message".
func FormatEntry(entry Entry) string {
	timestamp := entry.Timestamp
	if timestamp == "" {
		timestamp = "-"
	}
	text := fmt.Sprintf("[%s] [%s] %s", timestamp, entry.Severity, entry.Message)
	if entry.File != "" {
		text += fmt.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}
	return text
}

// SourceSummary is the summary of one log file.
type SourceSummary struct {
	Path    string  `json:"path"`
	Summary Summary `json:"summary"`
	Error   string  `json:"error,omitempty"`
}

// Report summarises several logs over the same window.
type Report struct {
	Generated time.Time       `json:"generated"`
	Since     time.Time       `json:"since"`
	Sources   []SourceSummary `json:"sources"`
}

// Totals adds up the summaries of every source.
func (r Report) Totals() Summary {
	var total Summary
	for _, source := range r.Sources {
		total.Total += source.Summary.Total
		total.Fatal += source.Summary.Fatal
		total.Errors += source.Summary.Errors
		total.Warnings += source.Summary.Warnings
		total.Notices += source.Summary.Notices
		total.Deprecated += source.Summary.Deprecated
		total.Exceptions += source.Summary.Exceptions
	}
	return total
}

var reportTemplate = template.Must(template.New("report").Funcs(sprig.FuncMap()).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Log report {{ .Generated | date "2006-01-02 15:04" }}</title>
<style>
body { font-family: sans-serif; margin: 2em; }
table { border-collapse: collapse; margin-bottom: 1.5em; }
td, th { border: 1px solid #ccc; padding: 0.3em 0.6em; text-align: left; }
.fatal { color: #b00020; }
</style>
</head>
<body>
<h1>Log report</h1>
<p>Entries since {{ .Since | date "2006-01-02 15:04" }}, generated {{ .Generated | date "2006-01-02 15:04" }}.</p>
{{- $totals := .Totals }}
<table>
<tr><th>Total</th><th>Fatal</th><th>Errors</th><th>Warnings</th><th>Notices</th><th>Deprecated</th><th>Exceptions</th></tr>
<tr><td>{{ $totals.Total }}</td><td class="fatal">{{ $totals.Fatal }}</td><td>{{ $totals.Errors }}</td><td>{{ $totals.Warnings }}</td><td>{{ $totals.Notices }}</td><td>{{ $totals.Deprecated }}</td><td>{{ $totals.Exceptions }}</td></tr>
</table>
{{- range .Sources }}
<h2>{{ .Path }}</h2>
{{- if .Error }}
<p class="fatal">{{ .Error }}</p>
{{- else }}
<p>{{ .Summary.Total }} entries, {{ .Summary.Fatal }} fatal, {{ .Summary.Warnings }} warnings.</p>
{{- with .Summary.MostCommon }}
<table>
<tr><th>Count</th><th>Message</th></tr>
{{- range . }}
<tr><td>{{ .Count }}</td><td>{{ .Message | trunc 200 }}</td></tr>
{{- end }}
</table>
{{- end }}
{{- with .Summary.RecentFatal }}
<h3>Recent fatal errors</h3>
<ul>
{{- range . }}
<li class="fatal">{{ default "-" .Timestamp }} {{ .Message | trunc 200 }}{{ if .File }} ({{ .File | base }}:{{ .Line }}){{ end }}</li>
{{- end }}
</ul>
{{- end }}
{{- end }}
{{- end }}
</body>
</html>
`))

// WriteReport writes a report as html, json, or txt.
func WriteReport(w io.Writer, report Report, format string) error {
	switch format {
	case ExportHTML:
		return reportTemplate.Execute(w, report)
	case ExportJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case ExportText:
		var b strings.Builder
		totals := report.Totals()
		fmt.Fprintf(&b, "Log report since %s\n", report.Since.Format(time.DateTime))
		fmt.Fprintf(&b, "%d entries: %d fatal, %d errors, %d warnings, %d notices, %d deprecated, %d exceptions\n",
			totals.Total, totals.Fatal, totals.Errors, totals.Warnings, totals.Notices, totals.Deprecated, totals.Exceptions)
		for _, source := range report.Sources {
			fmt.Fprintf(&b, "\n%s\n", source.Path)
			if source.Error != "" {
				fmt.Fprintf(&b, "  error: %s\n", source.Error)
				continue
			}
			fmt.Fprintf(&b, "  %d entries, %d fatal, %d warnings\n", source.Summary.Total, source.Summary.Fatal, source.Summary.Warnings)
			for _, common := range source.Summary.MostCommon {
				fmt.Fprintf(&b, "  %5d  %s\n", common.Count, common.Message)
			}
		}
		_, err := io.WriteString(w, b.String())
		return err
	}
	return fmt.Errorf("unknown report format %q (want html, json, or txt)", format)
}
