package documents

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/zeptools/gw-certs/certs"
	"github.com/zeptools/gw-certs/layout"
	"github.com/zeptools/gw-certs/records"
	"github.com/zeptools/gw-certs/render"
)

// IssueDateLayout is d-m-Y
const IssueDateLayout = "02-01-2006"

type Conf struct {
	OutputDir     string   `json:"output_dir"`
	AlternateDirs []string `json:"alternate_dirs"` // searched for already rendered documents
}

// Producer turns one record into a document: record -> template -> layout -> render.
// Per-record failures are reported in the result; only store outages return an error.
type Producer struct {
	Records  records.Store
	Renderer *render.Renderer
	Conf     Conf

	// ValidDocument reports whether path holds a usable document. Defaults to a pdfcpu page count.
	ValidDocument func(path string) bool
}

func NewProducer(store records.Store, renderer *render.Renderer, conf Conf) *Producer {
	return &Producer{Records: store, Renderer: renderer, Conf: conf, ValidDocument: HasPages}
}

// HasPages is true for a readable PDF with at least one page
func HasPages(path string) bool {
	st, err := os.Stat(path)
	if err != nil || st.IsDir() || st.Size() == 0 {
		return false
	}
	n, err := api.PageCountFile(path)
	if err != nil {
		log.Printf("[WARN][DOCS] %s is not a readable pdf: %v", path, err)
		return false
	}
	return n >= 1
}

func (p *Producer) valid(path string) bool {
	if path == "" {
		return false
	}
	if p.ValidDocument == nil {
		return HasPages(path)
	}
	return p.ValidDocument(path)
}

// DocumentPath is where a record's document is rendered
func (p *Producer) DocumentPath(recordID string) string {
	return filepath.Join(p.Conf.OutputDir, DocumentName(recordID))
}

func DocumentName(recordID string) string {
	return "certificate_" + recordID + ".pdf"
}

func (p *Producer) Produce(ctx context.Context, recordID string) (certs.RenderResult, error) {
	rec, err := p.Records.Get(ctx, recordID)
	if errors.Is(err, records.ErrNotFound) {
		return certs.Failed(recordID, certs.NewError(certs.KindMissingRecordData, recordID, errors.New("record not found"))), nil
	}
	if err != nil {
		return certs.RenderResult{}, fmt.Errorf("load record %s: %w", recordID, err)
	}
	displayName, parts := records.NameParts(rec)
	named := func(r certs.RenderResult) certs.RenderResult {
		r.DisplayName, r.NameParts = displayName, parts
		return r
	}

	if existing := rec.Meta[records.MetaCertificatePath]; p.valid(existing) {
		return named(certs.RenderResult{RecordID: recordID, DocumentPath: existing, Reused: true}), nil
	}

	path, err := p.render(ctx, rec)
	if err == nil {
		if err := p.Records.SetMeta(ctx, recordID, records.MetaCertificatePath, path); err != nil {
			log.Printf("[WARN][DOCS] record %s: saving document path: %v", recordID, err)
		}
		return named(certs.RenderResult{RecordID: recordID, DocumentPath: path}), nil
	}
	var infra *storeError
	if errors.As(err, &infra) {
		return certs.RenderResult{}, infra.err
	}
	kind := certs.KindOf(err)
	failed := named(certs.Failed(recordID, err))
	if !kind.Recoverable() {
		return failed, nil
	}

	if alt := p.findAlternate(rec); alt != "" {
		log.Printf("[INFO][DOCS] record %s: %s, using existing document %s", recordID, kind, alt)
		return named(certs.RenderResult{
			RecordID:     recordID,
			DocumentPath: alt,
			Recovered:    true,
			Message:      fmt.Sprintf("%s: %s; existing document used", kind, failed.Message),
		}), nil
	}
	if !kind.Retryable() {
		return failed, nil
	}
	log.Printf("[WARN][DOCS] record %s: %v; regenerating once", recordID, err)
	if path, err = p.render(ctx, rec); err != nil {
		var infra *storeError
		if errors.As(err, &infra) {
			return certs.RenderResult{}, infra.err
		}
		failed = named(certs.Failed(recordID, err))
		failed.Message = "regeneration failed: " + failed.Message
		return failed, nil
	}
	if err := p.Records.SetMeta(ctx, recordID, records.MetaCertificatePath, path); err != nil {
		log.Printf("[WARN][DOCS] record %s: saving document path: %v", recordID, err)
	}
	return named(certs.RenderResult{
		RecordID:     recordID,
		DocumentPath: path,
		Recovered:    true,
		Message:      fmt.Sprintf("%s: %s; regenerated", kind, failed.Message),
	}), nil
}

// storeError marks a record store outage met while rendering, as opposed to a record problem
type storeError struct {
	err error
}

func (e *storeError) Error() string { return e.err.Error() }

func (p *Producer) render(ctx context.Context, rec *records.Record) (string, error) {
	tpl, values, err := p.Prepare(ctx, rec)
	if err != nil {
		return "", err
	}
	plan, err := layout.Layout(tpl, values)
	if err != nil {
		return "", certs.WithRecord(err, rec.ID)
	}
	path := p.DocumentPath(rec.ID)
	if err = p.Renderer.RenderToFile(ctx, tpl, plan, tpl.BackgroundImage, path); err != nil {
		return "", certs.WithRecord(err, rec.ID)
	}
	return path, nil
}

// Prepare resolves the template and the field values of rec
func (p *Producer) Prepare(ctx context.Context, rec *records.Record) (certs.Template, map[string]string, error) {
	certType, key := records.CertificateType(rec)
	if certType == "" {
		return certs.Template{}, nil, certs.NewError(certs.KindMissingRecordData, rec.ID, errors.New("missing certificate type"))
	}
	if key != records.MetaCertificateType {
		if err := p.Records.SetMeta(ctx, rec.ID, records.MetaCertificateType, certType); err != nil {
			log.Printf("[WARN][DOCS] record %s: copying %s to %s: %v", rec.ID, key, records.MetaCertificateType, err)
		}
	}
	tpl, err := records.FindTemplate(ctx, p.Records, certType, rec.PostType)
	if err != nil {
		var ce *certs.Error
		if !errors.As(err, &ce) {
			return certs.Template{}, nil, &storeError{err: fmt.Errorf("template %q: %w", certType, err)}
		}
		return certs.Template{}, nil, certs.WithRecord(err, rec.ID)
	}

	values := FieldValues(rec, tpl)
	var missing []string
	for _, name := range tpl.RequiredFields() {
		if strings.TrimSpace(values[name]) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return certs.Template{}, nil, certs.NewError(certs.KindMissingRecordData, rec.ID,
			fmt.Errorf("missing %s", strings.Join(missing, ", ")))
	}
	return tpl, values, nil
}

// FieldValues collects the non-empty values of the template's slots.
// Legacy unnamed slots already carry the record kind's default names, see records.DecodeTemplate.
func FieldValues(rec *records.Record, tpl certs.Template) map[string]string {
	values := make(map[string]string, len(tpl.Fields))
	for _, slot := range tpl.Fields {
		name := slot.Name
		v := rec.MetaValue(name)
		if v == "" {
			continue
		}
		if name == "issue_date" {
			v = FormatIssueDate(v)
		}
		values[name] = v
	}
	return values
}

var issueDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"20060102", // date picker storage format
	IssueDateLayout,
	"02/01/2006",
	"January 2, 2006",
	"2 January 2006",
}

// FormatIssueDate renders a stored date as d-m-Y. Unrecognized values are kept as entered.
func FormatIssueDate(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, l := range issueDateLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t.Format(IssueDateLayout)
		}
	}
	return raw
}

// findAlternate looks for an already rendered document of rec under the known path conventions
func (p *Producer) findAlternate(rec *records.Record) string {
	recorded := rec.Meta[records.MetaCertificatePath]
	candidates := []string{recorded}
	dirs := append([]string{p.Conf.OutputDir}, p.Conf.AlternateDirs...)
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if recorded != "" {
			candidates = append(candidates, filepath.Join(dir, filepath.Base(recorded)))
		}
		candidates = append(candidates, filepath.Join(dir, DocumentName(rec.ID)))
	}
	for _, c := range candidates {
		if p.valid(c) {
			return c
		}
	}
	return ""
}
