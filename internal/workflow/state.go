package workflow

import (
	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/patient"
	"github.com/dgplabs/dgpscan/internal/report"
)

// Mode names the screen that is active. Exactly one applies at any time.
type Mode int

const (
	ModeIdle Mode = iota
	ModeSelected
	ModeAnalyzing
	ModeReported
	ModeErrored
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeSelected:
		return "selected"
	case ModeAnalyzing:
		return "analyzing"
	case ModeReported:
		return "reported"
	case ModeErrored:
		return "errored"
	}
	return "unknown"
}

// State is one of Idle, Selected, Analyzing, Reported or Errored.
type State interface {
	Mode() Mode
}

// Scan is the selected image together with its preview handle.
type Scan struct {
	Image   capture.Image
	Preview string
}

type Idle struct{}

// Selected shows the intake form. Prefill carries the record of a failed
// attempt so it need not be typed again.
type Selected struct {
	Scan
	Prefill *patient.Record
}

type Analyzing struct {
	Scan
	Patient patient.Record
}

type Reported struct {
	Scan
	Report report.Report
}

type Errored struct {
	Scan
	Patient patient.Record
	Message string
}

func (Idle) Mode() Mode      { return ModeIdle }
func (Selected) Mode() Mode  { return ModeSelected }
func (Analyzing) Mode() Mode { return ModeAnalyzing }
func (Reported) Mode() Mode  { return ModeReported }
func (Errored) Mode() Mode   { return ModeErrored }

func scanOf(s State) (Scan, bool) {
	switch v := s.(type) {
	case Selected:
		return v.Scan, true
	case Analyzing:
		return v.Scan, true
	case Reported:
		return v.Scan, true
	case Errored:
		return v.Scan, true
	}
	return Scan{}, false
}
