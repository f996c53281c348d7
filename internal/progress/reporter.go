package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter provides progress feedback while an agent bundle uploads.
type Reporter interface {
	Start(total int64, label string)
	Add(n int)
	Finish()
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a CIReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{out: os.Stderr}
	}
	return &TerminalReporter{}
}

// Reader reports every read of r to rep.
func Reader(r io.Reader, rep Reporter) io.Reader {
	return &reader{r: r, rep: rep}
}

type reader struct {
	r   io.Reader
	rep Reporter
}

func (r *reader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.rep.Add(n)
	}
	return n, err
}

// TerminalReporter displays a byte progress bar in the terminal.
type TerminalReporter struct {
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int64, label string) {
	r.bar = progressbar.DefaultBytes(total, label)
}

func (r *TerminalReporter) Add(n int) {
	if r.bar != nil {
		_ = r.bar.Add(n)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints a line at every quarter of the upload.
type CIReporter struct {
	out   io.Writer
	label string
	total int64
	done  int64
	step  int
}

func (r *CIReporter) Start(total int64, label string) {
	if r.out == nil {
		r.out = os.Stderr
	}
	r.total, r.label = total, label
	fmt.Fprintf(r.out, "%s: %d bytes\n", label, total)
}

func (r *CIReporter) Add(n int) {
	r.done += int64(n)
	if r.total <= 0 {
		return
	}
	for r.step < 4 && r.done*4 >= r.total*int64(r.step+1) {
		r.step++
		fmt.Fprintf(r.out, "%s: %d%%\n", r.label, r.step*25)
	}
}

func (r *CIReporter) Finish() {
	fmt.Fprintf(r.out, "%s: done (%d bytes)\n", r.label, r.done)
}
