package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/marathonlabs/marathon-cloud/internal/api"
	"github.com/marathonlabs/marathon-cloud/internal/artifacts"
	"github.com/marathonlabs/marathon-cloud/internal/result"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Result prints a run summary.
func (r *Renderer) Result(res result.Result) error {
	return r.Value(res, func() {
		fin, ok := res.(result.RunFinished)
		if !ok || r.EffectiveMode() != ModeStandard {
			r.Println(strings.TrimRight(res.String(), "\n"))
			return
		}
		r.printFinished(fin)
	})
}

func (r *Renderer) printFinished(fin result.RunFinished) {
	title := cases.Title(language.English)
	lines := strings.Split(strings.TrimRight(fin.String(), "\n"), "\n")
	r.Println(r.styles.Bold.Render(lines[0]))
	for _, line := range lines[1:] {
		key, val, _ := strings.Cut(strings.TrimPrefix(line, "\t"), ": ")
		if key == "state" {
			val = r.styles.StateStyle(val).Render(val)
		}
		r.Printf("  %s %s\n", r.styles.Muted.Render(title.String(key)+":"), val)
	}
}

// DownloadReport prints the outcome of an artifact download pass.
func (r *Renderer) DownloadReport(rep *artifacts.Report) {
	if rep == nil || r.Machine() {
		return
	}
	if rep.OK() {
		r.Success(fmt.Sprintf("Downloaded %d of %d artifacts", rep.Succeeded, rep.Total))
		return
	}
	r.Warning(fmt.Sprintf("%d of %d artifacts failed to download", len(rep.Failed), rep.Total))
	for _, f := range rep.Failed {
		_, _ = fmt.Fprintln(r.errOut, "  "+r.styles.Muted.Render(f.Error()))
	}
}

// Devices prints the device catalog.
func (r *Renderer) Devices(devices []api.Device) error {
	return r.Value(devices, func() {
		if len(devices) == 0 {
			r.Println("(0 devices)")
			return
		}
		t := table.NewWriter()
		t.SetOutputMirror(r.out)
		if r.EffectiveMode() == ModeStandard {
			t.SetStyle(table.StyleLight)
		} else {
			t.SetStyle(table.StyleDefault)
		}
		t.AppendHeader(table.Row{"ID", "Name", "Manufacturer", "Resolution", "DPI"})
		for _, d := range devices {
			t.AppendRow(table.Row{d.ID, d.Name, d.Manufacturer, fmt.Sprintf("%dx%d", d.Width, d.Height), d.DPI})
		}
		t.Render()
	})
}
