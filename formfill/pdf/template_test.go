package pdf

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// buildFormPDF assembles a minimal single-page AcroForm document with
// one text field, a merged-dict checkbox, a two-member radio group and
// a checkbox whose appearance dictionary lives on its kid widget
// annotation. Cross-reference offsets are computed while writing, so
// the bytes are a structurally valid file.
func buildFormPDF(t *testing.T) []byte {
	t.Helper()

	objects := []string{
		// 1: catalog with inline AcroForm
		"<< /Type /Catalog /Pages 2 0 R /AcroForm << /Fields [4 0 R 5 0 R 6 0 R 10 0 R] /DA (/Helv 0 Tf 0 g) >> >>",
		// 2: page tree
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		// 3: page carrying every widget annotation
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Annots [4 0 R 5 0 R 7 0 R 8 0 R 11 0 R] >>",
		// 4: text field, merged field/widget dict
		"<< /Type /Annot /Subtype /Widget /FT /Tx /T (f1_01[0]) /Rect [50 700 250 720] >>",
		// 5: checkbox, merged dict with its own /AP
		"<< /Type /Annot /Subtype /Widget /FT /Btn /T (c1_2[0]) /Rect [50 670 60 680] /AS /Off " +
			"/AP << /N << /1 9 0 R /Off 9 0 R >> >> >>",
		// 6: radio group field, kids addressed by index
		"<< /FT /Btn /T (c1_1[0]) /Ff 32768 /V /Off /Kids [7 0 R 8 0 R] >>",
		// 7, 8: radio kids with distinct on-states
		"<< /Type /Annot /Subtype /Widget /Parent 6 0 R /Rect [50 640 60 650] /AS /Off " +
			"/AP << /N << /1 9 0 R /Off 9 0 R >> >> >>",
		"<< /Type /Annot /Subtype /Widget /Parent 6 0 R /Rect [70 640 80 650] /AS /Off " +
			"/AP << /N << /2 9 0 R /Off 9 0 R >> >> >>",
		// 9: shared empty appearance form
		"<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Length 0 >>\nstream\n\nendstream",
		// 10: checkbox field whose /AP sits on the kid annotation only
		"<< /FT /Btn /T (c1_3[0]) /Kids [11 0 R] >>",
		"<< /Type /Annot /Subtype /Widget /Parent 10 0 R /Rect [50 610 60 620] /AS /Off " +
			"/AP << /N << /On 9 0 R /Off 9 0 R >> >> >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	start := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objects); i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		len(objects)+1, start)
	return buf.Bytes()
}

func findWidget(t *testing.T, tpl *Template, name string) *widget {
	t.Helper()
	for i := range tpl.widgets {
		if tpl.widgets[i].name == name {
			return &tpl.widgets[i]
		}
	}
	t.Fatalf("widget %q not enumerated", name)
	return nil
}

func TestLoadEnumeratesWidgets(t *testing.T) {
	tpl, err := Load("templates/fixture.pdf", buildFormPDF(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := []string{"f1_01[0]", "c1_2[0]", "c1_1[0]", "c1_1[1]", "c1_3[0]"}
	if diff := cmp.Diff(want, tpl.WidgetIDs()); diff != "" {
		t.Errorf("WidgetIDs mismatch (-want +got):\n%s", diff)
	}

	if w := findWidget(t, tpl, "f1_01[0]"); w.kind != textWidget {
		t.Errorf("f1_01[0] kind = %v, want text", w.kind)
	}
	group := findWidget(t, tpl, "c1_1[0]")
	if group.kind != groupWidget || len(group.kids) != 2 {
		t.Fatalf("c1_1[0] not enumerated as a two-member group: %+v", group)
	}
	if group.kids[0].memberID != "c1_1[0]" || group.kids[1].memberID != "c1_1[1]" {
		t.Errorf("member ids = %q, %q", group.kids[0].memberID, group.kids[1].memberID)
	}
}

func TestOnValueDiscovery(t *testing.T) {
	tpl, err := Load("templates/fixture.pdf", buildFormPDF(t))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if w := findWidget(t, tpl, "c1_2[0]"); w.onValue != "1" {
		t.Errorf("merged checkbox on-value = %q, want \"1\"", w.onValue)
	}
	group := findWidget(t, tpl, "c1_1[0]")
	if group.kids[0].onValue != "1" || group.kids[1].onValue != "2" {
		t.Errorf("group on-values = %q, %q", group.kids[0].onValue, group.kids[1].onValue)
	}
	// Appearance dict on the kid annotation, not the field dict.
	if w := findWidget(t, tpl, "c1_3[0]"); w.onValue != "On" {
		t.Errorf("kid-annotation checkbox on-value = %q, want \"On\"", w.onValue)
	}
}

func TestFillRoundTrip(t *testing.T) {
	template := buildFormPDF(t)
	out, stats, err := Fill("templates/fixture.pdf", template, Values{
		Text: map[string]string{"f1_01[0]": "55,151.93"},
		Checks: map[string]bool{
			"c1_2[0]": true,
			"c1_1[1]": true,
			"c1_3[0]": true,
		},
	})
	if err != nil {
		t.Fatalf("Fill: %v", err)
	}
	if stats.TextFilled != 1 || stats.CheckboxesSet != 3 || stats.Skipped != 0 {
		t.Fatalf("stats = %+v, want 1 text, 3 checkboxes, 0 skipped", stats)
	}

	// The filled bytes must load back as the same form.
	filled, err := Load("templates/fixture.pdf", out)
	if err != nil {
		t.Fatalf("reload of filled output: %v", err)
	}

	text := findWidget(t, filled, "f1_01[0]")
	got, err := textEntry(filled.ctx, text.dict, "V")
	if err != nil {
		t.Fatalf("text value: %v", err)
	}
	if got != "55,151.93" {
		t.Errorf("text /V = %q, want \"55,151.93\"", got)
	}

	box := findWidget(t, filled, "c1_2[0]")
	if v := box.dict.NameEntry("V"); v == nil || *v != "1" {
		t.Errorf("checkbox /V = %v, want 1", v)
	}

	group := findWidget(t, filled, "c1_1[0]")
	if v := group.dict.NameEntry("V"); v == nil || *v != "2" {
		t.Errorf("group /V = %v, want 2", v)
	}
	if as := group.kids[1].dict.NameEntry("AS"); as == nil || *as != "2" {
		t.Errorf("selected kid /AS = %v, want 2", as)
	}
	if as := group.kids[0].dict.NameEntry("AS"); as == nil || *as != "Off" {
		t.Errorf("unselected kid /AS = %v, want Off", as)
	}

	kidBox := findWidget(t, filled, "c1_3[0]")
	if v := kidBox.dict.NameEntry("V"); v == nil || *v != "On" {
		t.Errorf("kid-annotation checkbox /V = %v, want On", v)
	}
}
