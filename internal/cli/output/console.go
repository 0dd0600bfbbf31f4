package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/dustin/go-humanize"
	"github.com/marathonlabs/marathon-cloud/internal/artifacts"
	"github.com/marathonlabs/marathon-cloud/internal/progress"
	"github.com/muesli/termenv"
)

// redrawInterval throttles progress bar updates.
const redrawInterval = 100 * time.Millisecond

type taskState struct {
	total int64
	done  int64
	drawn time.Time
}

// Console renders progress events as stage lines and, on a terminal,
// in-place progress bars. It is safe for concurrent use.
type Console struct {
	r    *Renderer
	bars bool
	bar  bar.Model

	mu    sync.Mutex
	tasks map[string]*taskState
	now   func() time.Time
}

// Observer returns a console observer for the renderer. Machine modes
// produce no progress output so stdout stays parseable.
func (r *Renderer) Observer(noProgressBars bool) progress.Observer {
	if r.Machine() {
		return progress.Nop{}
	}
	return NewConsole(r, !noProgressBars && r.EffectiveMode() == ModeStandard && r.isTTY)
}

// NewConsole creates a console observer. bars enables in-place bars.
func NewConsole(r *Renderer, bars bool) *Console {
	opts := []bar.Option{bar.WithDefaultGradient(), bar.WithWidth(30)}
	if !r.isTTY || termenv.EnvNoColor() {
		opts = append(opts, bar.WithColorProfile(termenv.Ascii))
	}
	return &Console{
		r:     r,
		bars:  bars,
		bar:   bar.New(opts...),
		tasks: make(map[string]*taskState),
		now:   time.Now,
	}
}

// StageLine formats a stage as "[i/N] name".
func (c *Console) StageLine(s progress.Stage) string {
	prefix := c.r.styles.Stage.Render(fmt.Sprintf("[%d/%d]", s.Index, s.Total))
	return prefix + " " + s.Name
}

func (c *Console) OnStage(s progress.Stage) {
	c.r.Println(c.StageLine(s))
}

func (c *Console) OnStart(task string, total int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tasks[task] = &taskState{total: total}
}

func (c *Console) OnProgress(task string, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.tasks[task]
	if !ok {
		return
	}
	st.done += delta
	if !c.bars {
		return
	}
	if now := c.now(); now.Sub(st.drawn) >= redrawInterval {
		st.drawn = now
		c.r.Printf("\r\x1b[2K%s", c.line(task, st))
	}
}

func (c *Console) OnDone(task string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.tasks[task]
	if !ok {
		return
	}
	delete(c.tasks, task)
	if c.bars {
		st.done = st.total
		c.r.Printf("\r\x1b[2K%s\n", c.line(task, st))
		return
	}
	c.r.Muted(c.summary(task, st))
}

func (c *Console) line(task string, st *taskState) string {
	pct := 0.0
	if st.total > 0 {
		pct = float64(st.done) / float64(st.total)
	}
	if pct > 1 {
		pct = 1
	}
	return fmt.Sprintf("%s %s %s", c.bar.ViewAs(pct), label(task), c.amount(task, st))
}

func (c *Console) summary(task string, st *taskState) string {
	if task == artifacts.ProgressTask {
		return fmt.Sprintf("Downloaded %d/%d files", st.done, st.total)
	}
	return fmt.Sprintf("Uploaded %s (%s)", label(task), humanize.Bytes(uint64(max(st.total, 0))))
}

func (c *Console) amount(task string, st *taskState) string {
	if task == artifacts.ProgressTask {
		return fmt.Sprintf("%d/%d files", st.done, st.total)
	}
	return fmt.Sprintf("%s/%s", humanize.Bytes(uint64(max(st.done, 0))), humanize.Bytes(uint64(max(st.total, 0))))
}

func label(task string) string {
	if task == artifacts.ProgressTask {
		return "artifacts"
	}
	return strings.TrimSpace(filepath.Base(task))
}
