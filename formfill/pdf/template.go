// Package pdf applies canonical field values to AcroForm templates. It
// owns the PDF-side conventions (widget name derivation, checkbox
// on-value names, appearance flags); everything above this boundary
// speaks physical ids, strings and booleans only.
package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/openfiling/formfill/types"
)

// widgetKind classifies one enumerated form widget.
type widgetKind int

const (
	textWidget widgetKind = iota
	checkboxWidget
	groupWidget
)

// annot is one kid widget of a radio/exclusive group, addressable by its
// synthesized member id and carrying its appearance on-value.
type annot struct {
	memberID string
	onValue  string
	dict     pdftypes.Dict
}

// widget is one fillable form field. For groups, kids holds the member
// widgets; for standalone checkboxes onValue is the appearance state
// name that means "on".
type widget struct {
	name    string
	kind    widgetKind
	dict    pdftypes.Dict
	onValue string
	kids    []annot
}

// Template is a parsed, fillable form document. Load it once per render;
// the underlying pdfcpu context is mutated in place by Render.
type Template struct {
	ref     string
	raw     []byte
	ctx     *model.Context
	widgets []widget
}

// Load parses template bytes. Unreadable or structurally invalid bytes
// yield *types.TemplateCorruptError; a well-formed document with no
// AcroForm loads fine and simply has zero widgets.
func Load(ref string, data []byte) (*Template, error) {
	ctx, err := api.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return nil, &types.TemplateCorruptError{Ref: ref, Err: err}
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, &types.TemplateCorruptError{Ref: ref, Err: err}
	}
	widgets, err := enumerateWidgets(ctx)
	if err != nil {
		return nil, &types.TemplateCorruptError{Ref: ref, Err: err}
	}
	return &Template{ref: ref, raw: data, ctx: ctx, widgets: widgets}, nil
}

// WidgetIDs lists every addressable physical id on the template,
// including synthesized exclusive-group member ids.
func (t *Template) WidgetIDs() []string {
	var ids []string
	for i := range t.widgets {
		w := &t.widgets[i]
		if w.kind == groupWidget {
			for _, kid := range w.kids {
				ids = append(ids, kid.memberID)
			}
			continue
		}
		ids = append(ids, w.name)
	}
	return ids
}

// enumerateWidgets walks the AcroForm field tree exactly once and
// flattens it into addressable widgets. Fully qualified names join each
// field's partial /T with its ancestors' via ".".
func enumerateWidgets(ctx *model.Context) ([]widget, error) {
	catalog, err := ctx.Catalog()
	if err != nil {
		return nil, err
	}
	obj, found := catalog.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acro, err := ctx.DereferenceDict(obj)
	if err != nil {
		return nil, err
	}
	fieldsObj, found := acro.Find("Fields")
	if !found {
		return nil, nil
	}
	fields, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, err
	}
	return walkFields(ctx, fields, "", "")
}

func walkFields(ctx *model.Context, fields pdftypes.Array, prefix, inheritedFT string) ([]widget, error) {
	var widgets []widget
	for _, ref := range fields {
		d, err := ctx.DereferenceDict(ref)
		if err != nil || d == nil {
			continue
		}
		partial, err := textEntry(ctx, d, "T")
		if err != nil {
			return nil, err
		}
		name := joinName(prefix, partial)

		ft := inheritedFT
		if v := d.NameEntry("FT"); v != nil {
			ft = *v
		}

		kidsObj, hasKids := d.Find("Kids")
		if hasKids {
			kids, err := ctx.DereferenceArray(kidsObj)
			if err != nil {
				return nil, err
			}
			if ft == "Btn" && fieldFlags(ctx, d)&ffRadio != 0 {
				widgets = append(widgets, makeGroup(ctx, d, name, kids))
				continue
			}
			if fieldKids(ctx, kids) {
				sub, err := walkFields(ctx, kids, name, ft)
				if err != nil {
					return nil, err
				}
				widgets = append(widgets, sub...)
				continue
			}
			// Non-field kids are plain widget annotations of this field;
			// treat the field itself as the leaf.
		}

		switch ft {
		case "Tx":
			widgets = append(widgets, widget{name: name, kind: textWidget, dict: d})
		case "Btn":
			flags := fieldFlags(ctx, d)
			if flags&ffPushbutton != 0 {
				continue
			}
			widgets = append(widgets, widget{
				name:    name,
				kind:    checkboxWidget,
				dict:    d,
				onValue: checkboxOnValue(ctx, d),
			})
		}
		// Choice and signature fields are not fill targets here.
	}
	return widgets, nil
}

// Button field flag bits, per the field dictionary Ff entry.
const (
	ffRadio      = 1 << 15
	ffPushbutton = 1 << 16
)

func fieldFlags(ctx *model.Context, d pdftypes.Dict) int {
	obj, found := d.Find("Ff")
	if !found {
		return 0
	}
	o, err := ctx.Dereference(obj)
	if err != nil {
		return 0
	}
	if i, ok := o.(pdftypes.Integer); ok {
		return int(i)
	}
	return 0
}

// makeGroup flattens a radio-style group field into one widget whose
// kids are addressed by index: a group named "c1_1[0]" exposes members
// "c1_1[0]", "c1_1[1]", ... matching generator conventions for kid
// widgets.
func makeGroup(ctx *model.Context, d pdftypes.Dict, name string, kids pdftypes.Array) widget {
	w := widget{name: name, kind: groupWidget, dict: d}
	base := name
	if strings.HasSuffix(base, "[0]") {
		base = strings.TrimSuffix(base, "[0]")
	}
	for i, kidRef := range kids {
		kd, err := ctx.DereferenceDict(kidRef)
		if err != nil || kd == nil {
			continue
		}
		w.kids = append(w.kids, annot{
			memberID: fmt.Sprintf("%s[%d]", base, i),
			onValue:  onValueOf(ctx, kd),
			dict:     kd,
		})
	}
	return w
}

// fieldKids reports whether the kids array holds subfields (entries with
// their own /T) as opposed to bare widget annotations.
func fieldKids(ctx *model.Context, kids pdftypes.Array) bool {
	for _, ref := range kids {
		d, err := ctx.DereferenceDict(ref)
		if err != nil || d == nil {
			continue
		}
		if _, found := d.Find("T"); found {
			return true
		}
	}
	return false
}

// checkboxOnValue resolves the on-state for a standalone checkbox. The
// appearance dictionary usually sits on the merged field dict, but some
// generators keep it on the field's widget annotations; then the first
// kid carrying one decides.
func checkboxOnValue(ctx *model.Context, d pdftypes.Dict) string {
	if _, found := d.Find("AP"); found {
		return onValueOf(ctx, d)
	}
	kidsObj, found := d.Find("Kids")
	if !found {
		return "Yes"
	}
	kids, err := ctx.DereferenceArray(kidsObj)
	if err != nil {
		return "Yes"
	}
	for _, kidRef := range kids {
		kd, err := ctx.DereferenceDict(kidRef)
		if err != nil || kd == nil {
			continue
		}
		if _, found := kd.Find("AP"); found {
			return onValueOf(ctx, kd)
		}
	}
	return "Yes"
}

// onValueOf finds the appearance state name meaning "on" for a checkbox
// or group kid: any /AP /N key other than Off.
func onValueOf(ctx *model.Context, d pdftypes.Dict) string {
	apObj, found := d.Find("AP")
	if !found {
		return "Yes"
	}
	ap, err := ctx.DereferenceDict(apObj)
	if err != nil || ap == nil {
		return "Yes"
	}
	nObj, found := ap.Find("N")
	if !found {
		return "Yes"
	}
	n, err := ctx.DereferenceDict(nObj)
	if err != nil || n == nil {
		return "Yes"
	}
	for state := range n {
		if state != "Off" {
			return state
		}
	}
	return "Yes"
}

func joinName(prefix, partial string) string {
	switch {
	case prefix == "":
		return partial
	case partial == "":
		return prefix
	default:
		return prefix + "." + partial
	}
}

// textEntry resolves a string-valued dict entry, handling both literal
// and hex encodings.
func textEntry(ctx *model.Context, d pdftypes.Dict, key string) (string, error) {
	obj, found := d.Find(key)
	if !found {
		return "", nil
	}
	o, err := ctx.Dereference(obj)
	if err != nil {
		return "", err
	}
	switch s := o.(type) {
	case pdftypes.StringLiteral:
		return pdftypes.StringLiteralToString(s)
	case pdftypes.HexLiteral:
		return pdftypes.HexLiteralToString(s)
	}
	return "", nil
}
