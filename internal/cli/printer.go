package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"maps"
	"slices"

	"github.com/pterm/pterm"

	"example.com/stravasync/internal/outcome"
)

// printer renders command results either as pterm output or as JSON.
type printer struct {
	out  io.Writer
	json bool
}

// result prints res and returns an error for failed results so the process
// exits non-zero. render runs only for successful results in interactive mode.
func result[T any](p *printer, res outcome.Result[T], render func(*printer)) error {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Success {
		render(p)
	} else {
		pterm.Error.WithWriter(p.out).Printfln("%s: %s", res.Kind, res.Message)
	}
	if !res.Success {
		return fmt.Errorf("%s: %s", res.Kind, res.Message)
	}
	return nil
}

func (p *printer) info(format string, args ...any) {
	pterm.Info.WithWriter(p.out).Printfln(format, args...)
}

func (p *printer) success(format string, args ...any) {
	pterm.Success.WithWriter(p.out).Printfln(format, args...)
}

func (p *printer) line(text string) {
	fmt.Fprintln(p.out, text)
}

func (p *printer) table(rows [][]string) {
	if len(rows) <= 1 {
		return
	}
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(p.out).WithData(rows).Render()
}

func sortedSports(bySport map[string]float64) iter.Seq2[string, float64] {
	return func(yield func(string, float64) bool) {
		for _, sport := range slices.Sorted(maps.Keys(bySport)) {
			if !yield(sport, bySport[sport]) {
				return
			}
		}
	}
}
