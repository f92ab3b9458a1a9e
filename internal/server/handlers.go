package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"html/template"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/dgplabs/dgpscan/internal/capture"
	"github.com/dgplabs/dgpscan/internal/inference"
	"github.com/dgplabs/dgpscan/internal/patient"
	"github.com/dgplabs/dgpscan/internal/report"
	"github.com/dgplabs/dgpscan/internal/workflow"
)

type pageView struct {
	Mode      string
	Preview   string
	Notice    string
	Form      patient.Record
	FormError string
	Error     string
	Report    template.HTML
}

func (s *Server) index(c *fiber.Ctx) error {
	return s.renderPage(c, fiber.StatusOK, s.controller(c).State(), nil)
}

func (s *Server) renderPage(c *fiber.Ctx, status int, st workflow.State, tweak func(*pageView)) error {
	v := pageView{Mode: st.Mode().String()}
	switch st := st.(type) {
	case workflow.Selected:
		v.Preview = st.Preview
		if st.Prefill != nil {
			v.Form = *st.Prefill
		}
	case workflow.Analyzing:
		v.Preview = st.Preview
	case workflow.Errored:
		v.Preview = st.Preview
		v.Error = st.Message
	case workflow.Reported:
		v.Preview = st.Preview
		var buf bytes.Buffer
		if err := report.Render(&buf, st.Report); err != nil {
			return err
		}
		v.Report = template.HTML(buf.String())
	}
	if tweak != nil {
		tweak(&v)
	}

	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, v); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}

func (s *Server) selectImage(c *fiber.Ctx) error {
	ctrl := s.controller(c)

	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "image file is required")
	}
	img, err := capture.FromFileHeader(fh)
	if err == nil {
		img, err = capture.Normalize(img)
	}
	if err != nil {
		log.Printf("Rejected upload %q: %v", fh.Filename, err)
		status := fiber.StatusUnsupportedMediaType
		if errors.Is(err, capture.ErrEmpty) {
			status = fiber.StatusBadRequest
		}
		return s.renderPage(c, status, ctrl.State(), func(v *pageView) {
			v.Notice = "Please select a fingerprint image."
		})
	}

	if err := ctrl.SelectImage(img); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	log.Printf("Scan selected: %s (%s, %d bytes)", img.Filename, img.MIMEType, len(img.Data))
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) preview(c *fiber.Ctx) error {
	img, ok := s.previews.Get(c.Params("id"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "preview not found")
	}
	c.Set(fiber.HeaderContentType, img.MIMEType)
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Send(img.Data)
}

func (s *Server) submitPatient(c *fiber.Ctx) error {
	ctrl := s.controller(c)
	form := patient.Record{
		Name:         c.FormValue("name"),
		GuardianName: c.FormValue("guardianName"),
		Age:          c.FormValue("age"),
		Contact:      c.FormValue("contact"),
	}
	rec, err := patient.NewRecord(form.Name, form.GuardianName, form.Age, form.Contact)
	if err != nil {
		st := ctrl.State()
		if st.Mode() != workflow.ModeSelected {
			return fiber.NewError(fiber.StatusConflict, workflow.ErrNoImage.Error())
		}
		return s.renderPage(c, fiber.StatusUnprocessableEntity, st, func(v *pageView) {
			v.Form = form
			v.FormError = err.Error()
		})
	}

	if err := ctrl.Submit(rec); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) dismiss(c *fiber.Ctx) error {
	if err := s.controller(c).Dismiss(); err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) reset(c *fiber.Ctx) error {
	s.controller(c).Reset()
	return c.Redirect("/", fiber.StatusSeeOther)
}

func (s *Server) report(c *fiber.Ctx) error {
	r, err := s.controller(c).Report()
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	var buf bytes.Buffer
	if err := report.RenderDocument(&buf, r); err != nil {
		return err
	}
	c.Type("html", "utf-8")
	return c.Send(buf.Bytes())
}

func (s *Server) reportCBOR(c *fiber.Ctx) error {
	r, err := s.controller(c).Report()
	if err != nil {
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	data, err := report.EncodeCBOR(r)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/cbor")
	c.Attachment(r.ID + ".cbor")
	return c.Send(data)
}

type StateResponse struct {
	Mode    string          `json:"mode"`
	Preview string          `json:"preview,omitempty"`
	Patient *patient.Record `json:"patient,omitempty"`
	Error   string          `json:"error,omitempty"`
	Report  *report.Report  `json:"report,omitempty"`
}

func (s *Server) state(c *fiber.Ctx) error {
	st := s.controller(c).State()
	resp := StateResponse{Mode: st.Mode().String()}
	switch st := st.(type) {
	case workflow.Selected:
		resp.Preview = st.Preview
		resp.Patient = st.Prefill
	case workflow.Analyzing:
		resp.Preview = st.Preview
		resp.Patient = &st.Patient
	case workflow.Errored:
		resp.Preview = st.Preview
		resp.Patient = &st.Patient
		resp.Error = st.Message
	case workflow.Reported:
		resp.Preview = st.Preview
		resp.Patient = &st.Report.Patient
		resp.Report = &st.Report
	}
	return c.JSON(resp)
}

// AnalyzeRequest is the stateless API body. Image is raw base64 or a data
// URL; MIMEType is only consulted for raw base64.
type AnalyzeRequest struct {
	Image    string         `json:"image"`
	MIMEType string         `json:"mimeType"`
	Patient  patient.Record `json:"patient"`
}

type AnalyzeResponse struct {
	Report  *report.Report `json:"report,omitempty"`
	Elapsed string         `json:"elapsed"`
	Error   string         `json:"error,omitempty"`
}

func (s *Server) analyze(c *fiber.Ctx) error {
	start := time.Now()

	var req AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.Image == "" {
		return fiber.NewError(fiber.StatusBadRequest, "image is required")
	}
	rec, err := patient.NewRecord(req.Patient.Name, req.Patient.GuardianName, req.Patient.Age, req.Patient.Contact)
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	img, err := decodeImage(req.Image, req.MIMEType)
	if err != nil {
		return err
	}

	result, err := s.analyzer.Analyze(c.UserContext(), img)
	if err != nil {
		status := fiber.StatusBadGateway
		if inference.KindOf(err) == inference.KindConfig {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(AnalyzeResponse{
			Elapsed: time.Since(start).String(),
			Error:   inference.UserMessage(err),
		})
	}

	r := report.New(result, rec, s.now())
	log.Printf("Report %s issued: %s (%d%%)", r.ID, result.BloodGroup, result.Confidence)
	return c.JSON(AnalyzeResponse{Report: &r, Elapsed: time.Since(start).String()})
}

// decodeImage accepts "data:image/png;base64,..." or bare base64 typed by
// mimeType.
func decodeImage(payload, mimeType string) (capture.Image, error) {
	if strings.HasPrefix(payload, "data:") {
		meta, data, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasSuffix(meta, ";base64") {
			return capture.Image{}, fiber.NewError(fiber.StatusBadRequest, "Invalid base64 image format")
		}
		mimeType = strings.TrimSuffix(strings.TrimPrefix(meta, "data:"), ";base64")
		payload = data
	}
	if mimeType == "" {
		mimeType = capture.DefaultMIMEType
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return capture.Image{}, fiber.NewError(fiber.StatusBadRequest, "Failed to decode base64: "+err.Error())
	}
	img, err := capture.Accept("upload", mimeType, decoded)
	if err != nil {
		return capture.Image{}, fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	}
	img, err = capture.Normalize(img)
	if err != nil {
		return capture.Image{}, fiber.NewError(fiber.StatusUnsupportedMediaType, err.Error())
	}
	return img, nil
}
