package webserver

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spboyer/dea/internal/ccr"
	"github.com/spboyer/dea/internal/dataset"
	"github.com/spboyer/dea/internal/models"
	"github.com/spboyer/dea/internal/orchestration"
	"github.com/spboyer/dea/internal/reporting"
)

//go:embed static/page.html
var pageHTML string

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"barWidth": func(v float64) string {
		return strconv.FormatFloat(math.Max(0, math.Min(1, v))*100, 'f', 2, 64)
	},
}).Parse(pageHTML))

// evaluateOptions are the per-request solver settings. They arrive as the
// "options" object of a JSON request or as form fields.
type evaluateOptions struct {
	Workers         int      `mapstructure:"workers"`
	Tolerance       *float64 `mapstructure:"tolerance"`
	Decimals        *int     `mapstructure:"decimals"`
	Summary         bool     `mapstructure:"summary"`
	ConfidenceLevel float64  `mapstructure:"confidence_level"`
	Seed            *int64   `mapstructure:"seed"`
}

func decodeOptions(raw map[string]any) (evaluateOptions, error) {
	var opts evaluateOptions
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return opts, err
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("invalid options: %w", err)
	}
	if opts.Workers < 0 {
		return opts, fmt.Errorf("invalid options: workers must not be negative")
	}
	if opts.Tolerance != nil && *opts.Tolerance < 0 {
		return opts, fmt.Errorf("invalid options: tolerance must not be negative")
	}
	if opts.Decimals != nil && (*opts.Decimals < 0 || *opts.Decimals > 15) {
		return opts, fmt.Errorf("invalid options: decimals must be between 0 and 15")
	}
	if opts.ConfidenceLevel != 0 && (opts.ConfidenceLevel <= 0 || opts.ConfidenceLevel >= 1) {
		return opts, fmt.Errorf("invalid options: confidence_level must be in (0, 1)")
	}
	return opts, nil
}

func (o evaluateOptions) runnerOptions() []orchestration.RunnerOption {
	var out []orchestration.RunnerOption
	if o.Workers > 0 {
		out = append(out, orchestration.WithWorkers(o.Workers))
	}
	if o.Tolerance != nil {
		out = append(out, orchestration.WithTolerance(*o.Tolerance))
	}
	if o.Decimals != nil {
		out = append(out, orchestration.WithDecimals(*o.Decimals))
	}
	if o.Summary {
		level := o.ConfidenceLevel
		if level == 0 {
			level = 0.95
		}
		seed := int64(-1)
		if o.Seed != nil {
			seed = *o.Seed
		}
		out = append(out, orchestration.WithSummary(level, seed))
	}
	return out
}

// badRequestError marks client errors that are not table errors.
type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(format string, args ...any) error {
	return &badRequestError{err: fmt.Errorf(format, args...)}
}

type handlers struct {
	cfg    Config
	logger *slog.Logger
}

// registerRoutes sets up API and page routes on the given mux.
func registerRoutes(mux *http.ServeMux, h *handlers) error {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/evaluate", h.handleEvaluate)
	mux.HandleFunc("/api/", handleAPINotFound)

	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /{$}", h.handleSubmit)
	return nil
}

// handleHealth returns a simple health check response.
func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleAPINotFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

// handleEvaluate evaluates the table in the request body. The body is
// either the pasted text table, a JSON table, a JSON object
// {"data": ..., "options": {...}}, or a submitted form with a "data" field.
// The response format is chosen with ?format= and defaults to json.
func (h *handlers) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	format := reporting.JSONFormat
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := reporting.ParseFormat(q)
		if err != nil {
			h.writeError(w, badRequest("%v", err))
			return
		}
		format = f
	}

	table, opts, err := h.readRequest(w, r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	outcome, err := h.evaluate(r, table, opts)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := reporting.Write(&buf, format, outcome); err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("X-DEA-Skipped", strconv.Itoa(outcome.Skipped()))
	if format == reporting.CSVFormat {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
			"filename": reporting.DefaultCSVFilename,
		}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleIndex serves the paste form.
func (h *handlers) handleIndex(w http.ResponseWriter, _ *http.Request) {
	h.renderPage(w, http.StatusOK, pageData{Example: dataset.ExampleData})
}

// handleSubmit evaluates the pasted form data and renders the report.
func (h *handlers) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	if err := r.ParseForm(); err != nil {
		h.renderPage(w, http.StatusBadRequest, pageData{Example: dataset.ExampleData, Error: err.Error()})
		return
	}
	data := r.PostForm.Get("data")
	page := pageData{
		Data:    data,
		Example: dataset.ExampleData,
		Summary: r.PostForm.Get("summary") != "",
	}

	if strings.TrimSpace(data) == "" {
		page.Error = "Paste a table first."
		h.renderPage(w, http.StatusBadRequest, page)
		return
	}

	table, err := dataset.ParseBytes([]byte(data))
	if err != nil {
		page.Error = err.Error()
		h.renderPage(w, statusFor(err), page)
		return
	}
	opts := evaluateOptions{Summary: page.Summary}
	outcome, err := h.evaluate(r, table, opts)
	if err != nil {
		page.Error = err.Error()
		h.renderPage(w, statusFor(err), page)
		return
	}

	report, err := reporting.RenderHTMLFragment(outcome)
	if err != nil {
		page.Error = err.Error()
		h.renderPage(w, http.StatusInternalServerError, page)
		return
	}
	page.Outcome = outcome
	page.Report = template.HTML(report) //nolint:gosec // goldmark output with raw HTML disabled
	h.renderPage(w, http.StatusOK, page)
}

type pageData struct {
	Data    string
	Example string
	Summary bool
	Error   string
	Outcome *models.Outcome
	Report  template.HTML
}

func (h *handlers) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("rendering page", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// readRequest extracts the table and options from an evaluate request.
func (h *handlers) readRequest(w http.ResponseWriter, r *http.Request) (*models.Table, evaluateOptions, error) {
	var opts evaluateOptions
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		return h.readForm(r)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, opts, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, opts, badRequest("request body is empty")
	}

	if mediaType != "application/json" && bytes.TrimSpace(body)[0] != '{' {
		table, err := dataset.ParseBytes(body)
		return table, opts, err
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, opts, badRequest("invalid JSON body: %v", err)
	}
	data, ok := envelope["data"]
	if !ok {
		// A bare JSON table.
		table, err := dataset.ParseJSON(body)
		return table, opts, err
	}

	if raw, ok := envelope["options"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, opts, badRequest("options must be an object")
		}
		if opts, err = decodeOptions(m); err != nil {
			return nil, opts, &badRequestError{err: err}
		}
	}
	for k := range envelope {
		if k != "data" && k != "options" {
			return nil, opts, badRequest("unknown field %q", k)
		}
	}

	var table *models.Table
	switch v := data.(type) {
	case string:
		table, err = dataset.ParseBytes([]byte(v))
	case map[string]any:
		var raw []byte
		if raw, err = json.Marshal(v); err == nil {
			table, err = dataset.ParseJSON(raw)
		}
	default:
		err = badRequest("data must be a string or a JSON table")
	}
	return table, opts, err
}

func (h *handlers) readForm(r *http.Request) (*models.Table, evaluateOptions, error) {
	var opts evaluateOptions
	if err := r.ParseMultipartForm(h.cfg.MaxBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return nil, opts, badRequest("invalid form: %w", err)
	}

	data := r.PostForm.Get("data")
	if data == "" && r.MultipartForm != nil {
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			f, err := files[0].Open()
			if err != nil {
				return nil, opts, err
			}
			defer f.Close() //nolint:errcheck
			b, err := io.ReadAll(f)
			if err != nil {
				return nil, opts, err
			}
			data = string(b)
		}
	}
	if strings.TrimSpace(data) == "" {
		return nil, opts, badRequest("form field \"data\" is empty")
	}

	raw := make(map[string]any)
	for k, v := range r.PostForm {
		if k == "data" || len(v) == 0 || v[0] == "" {
			continue
		}
		raw[k] = v[0]
	}
	opts, err := decodeOptions(raw)
	if err != nil {
		return nil, opts, &badRequestError{err: err}
	}

	table, err := dataset.ParseBytes([]byte(data))
	return table, opts, err
}

func (h *handlers) evaluate(r *http.Request, table *models.Table, opts evaluateOptions) (*models.Outcome, error) {
	runnerOpts := append([]orchestration.RunnerOption{orchestration.WithLogger(h.logger)}, h.cfg.RunnerOptions...)
	runnerOpts = append(runnerOpts, opts.runnerOptions()...)
	outcome, err := orchestration.NewRunner(runnerOpts...).Run(r.Context(), table)
	if err != nil {
		return nil, err
	}
	h.logger.Info("evaluated table",
		"dmus", table.Len(), "skipped", outcome.Skipped(), "duration_ms", outcome.DurationMs)
	return outcome, nil
}

func statusFor(err error) int {
	var (
		shapeErr *models.ShapeError
		dataErr  *models.DataError
		badReq   *badRequestError
		tooLarge *http.MaxBytesError
	)
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &shapeErr), errors.As(err, &dataErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &badReq):
		return http.StatusBadRequest
	case errors.Is(err, ccr.ErrBatchAborted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorKind(err error) string {
	var (
		shapeErr *models.ShapeError
		dataErr  *models.DataError
	)
	switch {
	case errors.As(err, &shapeErr):
		return "shape"
	case errors.As(err, &dataErr):
		return "data"
	case errors.Is(err, ccr.ErrBatchAborted):
		return "aborted"
	default:
		return "request"
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		h.logger.Error("evaluate request failed", "error", err)
	} else {
		h.logger.Debug("evaluate request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "kind": errorKind(err)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
