package core

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"ts3query/config"
	"ts3query/protocol"
	"ts3query/serverquery"
)

// Renderer writes command results and notifications.
type Renderer interface {
	Result(w io.Writer, command string, resp *serverquery.Response) error
	Event(w io.Writer, n serverquery.Notification) error
}

// NewRenderer returns the renderer for format.  The auto format picks
// a table when w is a terminal and raw lines otherwise.
func NewRenderer(format string, w io.Writer) (Renderer, error) {
	switch format {
	case config.OutputAuto:
		if isTerminal(w) {
			return tableRenderer{}, nil
		}
		return rawRenderer{}, nil
	case config.OutputTable:
		return tableRenderer{}, nil
	case config.OutputRaw:
		return rawRenderer{}, nil
	case config.OutputJSON:
		return jsonRenderer{}, nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// ── raw ──────────────────────────────────────────────────────────────

// rawRenderer prints the body exactly as the server sent it.
type rawRenderer struct{}

func (rawRenderer) Result(w io.Writer, _ string, resp *serverquery.Response) error {
	if resp.Body == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, resp.Body)
	return err
}

func (rawRenderer) Event(w io.Writer, n serverquery.Notification) error {
	if len(n.Data) == 0 {
		_, err := fmt.Fprintln(w, n.Event)
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s\n", n.Event, n.Data.String())
	return err
}

// ── json ─────────────────────────────────────────────────────────────

// jsonRenderer emits one JSON object per line.
type jsonRenderer struct{}

type jsonResult struct {
	Command string            `json:"command"`
	Records []protocol.Record `json:"records"`
}

type jsonEvent struct {
	Event string          `json:"event"`
	Data  protocol.Record `json:"data,omitempty"`
}

func (jsonRenderer) Result(w io.Writer, command string, resp *serverquery.Response) error {
	records := resp.Records()
	if records == nil {
		records = []protocol.Record{}
	}
	return json.NewEncoder(w).Encode(jsonResult{Command: command, Records: records})
}

func (jsonRenderer) Event(w io.Writer, n serverquery.Notification) error {
	return json.NewEncoder(w).Encode(jsonEvent{Event: n.Event, Data: n.Data})
}

// ── table ────────────────────────────────────────────────────────────

// tableRenderer draws records with go-pretty.  A single record is shown
// as a key/value listing since info commands return dozens of fields.
type tableRenderer struct{}

func (tableRenderer) Result(w io.Writer, _ string, resp *serverquery.Response) error {
	records := resp.Records()
	switch len(records) {
	case 0:
		return nil
	case 1:
		return writeTable(w, keyValueTable(records[0]))
	default:
		return writeTable(w, recordTable(records))
	}
}

func (tableRenderer) Event(w io.Writer, n serverquery.Notification) error {
	_, err := fmt.Fprintf(w, "» %s\n", n.Event)
	if err != nil || len(n.Data) == 0 {
		return err
	}
	return writeTable(w, keyValueTable(n.Data))
}

func writeTable(w io.Writer, tw table.Writer) error {
	_, err := fmt.Fprintln(w, tw.Render())
	return err
}

func keyValueTable(rec protocol.Record) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"field", "value"})
	for _, k := range rec.Keys() {
		tw.AppendRow(table.Row{k, rec[k]})
	}
	return tw
}

func recordTable(records []protocol.Record) table.Writer {
	columns := columnsOf(records)

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	tw.AppendHeader(header)

	numeric := make([]bool, len(columns))
	for i := range numeric {
		numeric[i] = true
	}
	for _, rec := range records {
		row := make(table.Row, len(columns))
		for i, c := range columns {
			v := rec[c]
			row[i] = v
			if v != "" {
				if _, err := strconv.ParseInt(v, 10, 64); err != nil {
					numeric[i] = false
				}
			}
		}
		tw.AppendRow(row)
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i := range columns {
		align := text.AlignLeft
		if numeric[i] {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// columnsOf returns the union of keys across records, sorted.
func columnsOf(records []protocol.Record) []string {
	seen := map[string]bool{}
	var cols []string
	for _, rec := range records {
		for k := range rec {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}
