package report

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"math/rand"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/dgplabs/dgpscan/internal/inference"
	"github.com/dgplabs/dgpscan/internal/patient"
)

//go:embed templates/report.html
var templatesFS embed.FS

var reportTmpl = template.Must(template.New("report.html").Funcs(template.FuncMap{
	"stamp": Stamp,
	"inc":   func(i int) int { return i + 1 },
}).ParseFS(templatesFS, "templates/report.html"))

// Report binds one analysis result to the patient it was run for. ID and
// IssuedAt are fixed when the report is created, so every rendering of the
// same report shows the same values.
type Report struct {
	ID       string           `json:"id" cbor:"1,keyasint"`
	IssuedAt time.Time        `json:"issuedAt" cbor:"2,keyasint"`
	Patient  patient.Record   `json:"patient" cbor:"3,keyasint"`
	Result   inference.Result `json:"result" cbor:"4,keyasint"`
}

// New stamps a result with a display identifier and the issue time. The
// identifier is random and not guaranteed unique.
func New(result inference.Result, rec patient.Record, now time.Time) Report {
	return Report{
		ID:       fmt.Sprintf("DGP-%06d", rand.Intn(1000000)),
		IssuedAt: now,
		Patient:  rec,
		Result:   result,
	}
}

// Stamp formats a time the way it is printed on the report, e.g.
// "Oct 16, 2026, 03:04 PM".
func Stamp(t time.Time) string {
	return t.Format("Jan 2, 2006, 03:04 PM")
}

// Render writes the report as an HTML fragment for embedding in a page.
func Render(w io.Writer, r Report) error {
	return reportTmpl.ExecuteTemplate(w, "report", r)
}

// RenderDocument writes a standalone printable page holding the report.
func RenderDocument(w io.Writer, r Report) error {
	return reportTmpl.ExecuteTemplate(w, "document", r)
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeCBOR produces a deterministic archive of r.
func EncodeCBOR(r Report) ([]byte, error) {
	return encMode.Marshal(r)
}

func DecodeCBOR(data []byte) (Report, error) {
	var r Report
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("report: decode cbor: %w", err)
	}
	return r, nil
}
