package formfill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/openfiling/formfill/formfill/pdf"
	"github.com/openfiling/formfill/formfill/store"
	"github.com/openfiling/formfill/types"
)

// TemplateLoader fetches published template bytes by reference.
// Templates are immutable per published version, so implementations may
// cache freely.
type TemplateLoader interface {
	LoadTemplate(ctx context.Context, ref string) ([]byte, error)
}

// VersionIndex is the append-only version ledger the engine records
// into. *store.Index is the standard implementation.
type VersionIndex interface {
	Append(ctx context.Context, rec types.VersionRecord) error
	Records(ctx context.Context, documentID string) ([]types.VersionRecord, error)
	HighestVersion(ctx context.Context, documentID string) (int, error)
}

// Engine orchestrates one fill: resolve, format, render, version,
// persist. It is stateless between calls; every piece of per-call state
// rides in the FormInput, so distinct documents render in parallel
// safely. The only serialization point is the store's conditional
// version write.
type Engine struct {
	catalog *Catalog
	objects store.ObjectStore
	index   VersionIndex

	loader         TemplateLoader
	render         func(ref string, data []byte, vals pdf.Values) ([]byte, pdf.Stats, error)
	logger         *slog.Logger
	clock          func() time.Time
	storeTimeout   time.Duration
	presignTTL     time.Duration
	versionRetries int
}

// Option customises engine construction.
type Option func(*Engine)

// WithLogger sets the structured logger. The default discards
// everything; output policy belongs to the embedding process.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithTemplateLoader overrides where template bytes come from. The
// default reads tmpl.TemplateRef from the engine's own object store.
func WithTemplateLoader(loader TemplateLoader) Option {
	return func(e *Engine) { e.loader = loader }
}

// WithMaxVersionRetries bounds how many conditional-write conflicts one
// fill absorbs before surfacing a transient VersionConflictError.
func WithMaxVersionRetries(n int) Option {
	return func(e *Engine) { e.versionRetries = n }
}

// WithStoreTimeout bounds each individual store operation.
func WithStoreTimeout(d time.Duration) Option {
	return func(e *Engine) { e.storeTimeout = d }
}

// WithPresignTTL sets the validity window of returned retrieval
// descriptors.
func WithPresignTTL(d time.Duration) Option {
	return func(e *Engine) { e.presignTTL = d }
}

// New assembles an engine over a catalog, an object store and a version
// index.
func New(catalog *Catalog, objects store.ObjectStore, index VersionIndex, opts ...Option) *Engine {
	e := &Engine{
		catalog:        catalog,
		objects:        objects,
		index:          index,
		render:         pdf.Fill,
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:          time.Now,
		storeTimeout:   10 * time.Second,
		presignTTL:     15 * time.Minute,
		versionRetries: 5,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.loader == nil {
		e.loader = storeTemplateLoader{objects: objects, timeout: e.storeTimeout}
	}
	return e
}

// storeTemplateLoader reads template bytes straight from the object
// store.
type storeTemplateLoader struct {
	objects store.ObjectStore
	timeout time.Duration
}

func (l storeTemplateLoader) LoadTemplate(ctx context.Context, ref string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	data, err := l.objects.Get(ctx, ref)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, &types.NotFoundError{Kind: "form", ID: ref}
	}
	return data, err
}

// FillResult is what a successful fill hands back: the immutable version
// metadata plus a retrieval descriptor for the stored artifact.
type FillResult struct {
	Document   types.FilledDocument
	Descriptor types.Descriptor
	Stats      pdf.Stats
}

// Fill resolves, formats and renders input against its form template,
// then persists the artifact as the next version of the input's
// document.
//
// Structural failures (unknown form, corrupt template, store trouble)
// abort the whole call. Field-level imperfections never do: unmapped
// keys and skipped widgets are reported as counts on the result, and the
// caller decides whether partial coverage is acceptable.
func (e *Engine) Fill(ctx context.Context, input types.FormInput) (*FillResult, error) {
	tmpl, err := e.catalog.Template(input.FormType, input.TaxYear)
	if err != nil {
		// Unknown form: no document id is computed and nothing is
		// written.
		return nil, err
	}

	res := Resolve(tmpl, input.Values)
	plan := Format(tmpl, res)
	for _, c := range plan.Conflicts {
		e.logger.Warn("exclusive group conflict", "form", tmpl.FormType, "detail", c)
	}

	raw, err := e.loader.LoadTemplate(ctx, tmpl.TemplateRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load template %s: %w", tmpl.TemplateRef, err)
	}

	rendered, stats, err := e.render(tmpl.TemplateRef, raw, pdf.Values{Text: plan.Text, Checks: plan.Checks})
	if err != nil {
		return nil, err
	}

	docID := DocumentID(input.FormType, input.TaxYear, input.Identity)
	key, version, err := e.writeVersion(ctx, tmpl, input.Identity, docID, rendered)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	rec := types.VersionRecord{
		DocumentID: docID,
		Version:    version,
		StorageKey: key,
		SizeBytes:  int64(len(rendered)),
		CreatedAt:  now,
	}
	if err := e.recordVersion(ctx, rec); err != nil {
		return nil, err
	}

	desc, err := e.objects.Presign(key, e.presignTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to presign %s: %w", key, err)
	}

	e.logger.Info("form filled",
		"form", tmpl.FormType,
		"tax_year", tmpl.TaxYear,
		"document_id", docID,
		"version", version,
		"text_filled", stats.TextFilled,
		"checkboxes_set", stats.CheckboxesSet,
		"skipped", stats.Skipped,
		"unmapped", len(res.Unmapped),
	)

	return &FillResult{
		Document: types.FilledDocument{
			DocumentID:    docID,
			Version:       version,
			StorageKey:    key,
			SizeBytes:     int64(len(rendered)),
			CreatedAt:     now,
			FieldsFilled:  stats.TextFilled,
			CheckboxesSet: stats.CheckboxesSet,
			Skipped:       stats.Skipped,
			Unmapped:      res.Unmapped,
		},
		Descriptor: desc,
		Stats:      stats,
	}, nil
}

// writeVersion assigns the next version under the store's conditional
// write: claim key N+1 only if nothing exists there, and on a lost race
// recompute and try the next slot, a bounded number of times. Versions
// come out strictly increasing and gap-free for a document even under
// concurrent writers; a listing-then-blind-write scheme cannot give that
// guarantee and is deliberately not used.
func (e *Engine) writeVersion(ctx context.Context, tmpl *types.FormTemplate, identity types.Identity, docID string, data []byte) (string, int, error) {
	highest, err := e.highestVersion(ctx, docID)
	if err != nil {
		return "", 0, err
	}
	idPath := identityPath(identity, docID)

	candidate := highest + 1
	for attempt := 0; attempt < e.versionRetries; attempt++ {
		key := StorageKey(tmpl, idPath, candidate)
		putCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
		err := e.objects.PutIfAbsent(putCtx, key, data)
		cancel()
		switch {
		case err == nil:
			return key, candidate, nil
		case errors.Is(err, store.ErrKeyExists):
			e.logger.Debug("version conflict, retrying", "document_id", docID, "version", candidate)
			candidate++
		default:
			return "", 0, wrapStoreErr("put", key, err)
		}
	}
	return "", 0, &types.VersionConflictError{DocumentID: docID, Attempts: e.versionRetries}
}

// recordVersion persists the version record twice: a sidecar object in
// the store (fallback source) and the version index (primary source).
func (e *Engine) recordVersion(ctx context.Context, rec types.VersionRecord) error {
	raw, err := recordBytes(rec)
	if err != nil {
		return err
	}
	key := versionRecordKey(rec.DocumentID, rec.Version)
	putCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	err = e.objects.PutIfAbsent(putCtx, key, raw)
	cancel()
	if err != nil && !errors.Is(err, store.ErrKeyExists) {
		return wrapStoreErr("put", key, err)
	}

	idxCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	if err := e.index.Append(idxCtx, rec); err != nil {
		return fmt.Errorf("failed to append version index: %w", err)
	}
	return nil
}

func (e *Engine) highestVersion(ctx context.Context, docID string) (int, error) {
	idxCtx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()
	return e.index.HighestVersion(idxCtx, docID)
}

func wrapStoreErr(op, key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &types.StorageTimeoutError{Op: op, Key: key, Err: err}
	}
	return err
}
