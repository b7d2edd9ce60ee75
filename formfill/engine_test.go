package formfill

import (
	"bytes"
	"context"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/openfiling/formfill/formfill/pdf"
	"github.com/openfiling/formfill/formfill/store"
	"github.com/openfiling/formfill/types"
)

var testIdentity = types.Identity{Attributes: map[string]string{
	"name": "Jane Q Public",
	"tin":  "123-45-6789",
}}

// fakeTemplates serves fixed bytes for any reference.
type fakeTemplates struct {
	data []byte
}

func (f fakeTemplates) LoadTemplate(context.Context, string) ([]byte, error) {
	return f.data, nil
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *store.MemStore) {
	t.Helper()
	catalog, err := NewCatalog()
	if err != nil {
		t.Fatalf("failed to build catalog: %v", err)
	}
	objects := store.NewMemStore()
	index, err := store.NewIndex(filepath.Join(t.TempDir(), "index.json"))
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	opts = append([]Option{
		WithTemplateLoader(fakeTemplates{data: []byte("%PDF-1.7 template")}),
	}, opts...)
	return New(catalog, objects, index, opts...), objects
}

func TestFillScenario1040(t *testing.T) {
	engine, _ := newTestEngine(t)

	var applied pdf.Values
	engine.render = func(_ string, data []byte, vals pdf.Values) ([]byte, pdf.Stats, error) {
		applied = vals
		return append(data, []byte(" filled")...), pdf.Stats{TextFilled: len(vals.Text), CheckboxesSet: 1}, nil
	}

	input := types.FormInput{
		FormType: "1040",
		TaxYear:  2024,
		Identity: testIdentity,
		Values: []types.SemanticValue{
			{Key: "wages_line_1a", Value: 55151.93},
			{Key: "federal_tax_withheld_w2_25a", Value: 16606.17},
			{Key: "single", Value: true},
			{Key: "married_filing_jointly", Value: false},
		},
	}

	first, err := engine.Fill(context.Background(), input)
	if err != nil {
		t.Fatalf("fill failed: %v", err)
	}

	wantText := map[string]string{
		"topmostSubform[0].Page1[0].f1_32[0]": "55,151.93",
		"topmostSubform[0].Page2[0].f2_11[0]": "16,606.17",
	}
	if diff := cmp.Diff(wantText, applied.Text); diff != "" {
		t.Errorf("text plan mismatch (-want +got):\n%s", diff)
	}
	if !applied.Checks["topmostSubform[0].Page1[0].FilingStatus[0].c1_1[0]"] {
		t.Error("single member should be selected")
	}
	if on := applied.Checks["topmostSubform[0].Page1[0].FilingStatus[0].c1_1[1]"]; on {
		t.Error("married_filing_jointly member should be deselected")
	}

	if first.Document.Version != 1 {
		t.Errorf("first fill version = %d, want 1", first.Document.Version)
	}
	if first.Descriptor.URL == "" {
		t.Error("expected a retrieval descriptor")
	}

	// Second fill with a changed wage amount: same lineage, version 2.
	input.Values[0].Value = 60000.00
	second, err := engine.Fill(context.Background(), input)
	if err != nil {
		t.Fatalf("second fill failed: %v", err)
	}
	if second.Document.DocumentID != first.Document.DocumentID {
		t.Errorf("document id forked: %s vs %s", first.Document.DocumentID, second.Document.DocumentID)
	}
	if second.Document.Version != 2 {
		t.Errorf("second fill version = %d, want 2", second.Document.Version)
	}
}

func TestFillUnknownFormWritesNothing(t *testing.T) {
	engine, objects := newTestEngine(t)

	_, err := engine.Fill(context.Background(), types.FormInput{
		FormType: "9999-NOPE",
		TaxYear:  2024,
		Identity: testIdentity,
	})
	if !types.IsNotFound(err) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if objects.Len() != 0 {
		t.Errorf("no storage write may happen for an unknown form, store has %d objects", objects.Len())
	}
}

func TestFillEmptyValueMapIsIdempotentNoOp(t *testing.T) {
	template := []byte("not even a real pdf")
	engine, objects := newTestEngine(t, WithTemplateLoader(fakeTemplates{data: template}))

	result, err := engine.Fill(context.Background(), types.FormInput{
		FormType: "1040",
		TaxYear:  2024,
		Identity: testIdentity,
	})
	if err != nil {
		t.Fatalf("fill failed: %v", err)
	}
	if result.Stats != (pdf.Stats{}) {
		t.Errorf("expected zero stats, got %+v", result.Stats)
	}

	stored, err := objects.Get(context.Background(), result.Document.StorageKey)
	if err != nil {
		t.Fatalf("failed to read stored artifact: %v", err)
	}
	if !bytes.Equal(stored, template) {
		t.Error("empty value map must store the template bytes unchanged")
	}
}

func TestFillConcurrentVersionsAreGapFree(t *testing.T) {
	engine, _ := newTestEngine(t, WithMaxVersionRetries(64))

	const n = 16
	versions := make([]int, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := engine.Fill(context.Background(), types.FormInput{
				FormType: "1040",
				TaxYear:  2024,
				Identity: testIdentity,
			})
			if err != nil {
				errs[i] = err
				return
			}
			versions[i] = result.Document.Version
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("fill %d failed: %v", i, err)
		}
	}
	sort.Ints(versions)
	for i, v := range versions {
		if v != i+1 {
			t.Fatalf("versions not gap-free: %v", versions)
		}
	}
}

func TestVersionHistory(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	input := types.FormInput{FormType: "w9", TaxYear: 2024, Identity: testIdentity}
	var docID string
	for i := 0; i < 3; i++ {
		result, err := engine.Fill(ctx, input)
		if err != nil {
			t.Fatalf("fill %d failed: %v", i, err)
		}
		docID = result.Document.DocumentID
	}

	recs, err := engine.VersionHistory(ctx, docID)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(recs))
	}
	for i, rec := range recs {
		if rec.Version != i+1 {
			t.Errorf("record %d has version %d", i, rec.Version)
		}
		if rec.DocumentID != docID {
			t.Errorf("record %d has document id %s", i, rec.DocumentID)
		}
	}

	t.Run("unknown document id", func(t *testing.T) {
		_, err := engine.VersionHistory(ctx, "no-such-document")
		if !types.IsNotFound(err) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
	})
}

func TestVersionHistoryFallsBackToStoreListing(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	input := types.FormInput{FormType: "1040", TaxYear: 2023, Identity: testIdentity}
	var docID string
	for i := 0; i < 2; i++ {
		result, err := engine.Fill(ctx, input)
		if err != nil {
			t.Fatalf("fill %d failed: %v", i, err)
		}
		docID = result.Document.DocumentID
	}

	// Swap in an index that always fails; history must reconcile from
	// the store's sidecar records in the same ascending order.
	engine.index = failingIndex{}
	recs, err := engine.VersionHistory(ctx, docID)
	if err != nil {
		t.Fatalf("fallback history failed: %v", err)
	}
	if len(recs) != 2 || recs[0].Version != 1 || recs[1].Version != 2 {
		t.Fatalf("unexpected fallback records: %+v", recs)
	}
}

type failingIndex struct{}

func (failingIndex) Append(context.Context, types.VersionRecord) error { return errIndexDown }
func (failingIndex) Records(context.Context, string) ([]types.VersionRecord, error) {
	return nil, errIndexDown
}
func (failingIndex) HighestVersion(context.Context, string) (int, error) { return 0, errIndexDown }

var errIndexDown = &types.StorageTimeoutError{Op: "index", Key: "index.json", Err: context.DeadlineExceeded}

func TestLatestDescriptor(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.Fill(ctx, types.FormInput{FormType: "ca-540", TaxYear: 2024, Identity: testIdentity})
	if err != nil {
		t.Fatal(err)
	}
	desc, err := engine.LatestDescriptor(ctx, result.Document.DocumentID, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if desc.StorageKey != result.Document.StorageKey {
		t.Errorf("descriptor points at %s, want %s", desc.StorageKey, result.Document.StorageKey)
	}
}
