package pdf

import (
	"bytes"
	"fmt"
	"unicode/utf16"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Values is the render plan handed down by the engine: physical id to
// formatted text, physical id to explicit checkbox state. Ids absent
// from both maps leave their widgets at the template default.
type Values struct {
	Text   map[string]string
	Checks map[string]bool
}

func (v Values) empty() bool { return len(v.Text) == 0 && len(v.Checks) == 0 }

// Stats reports what one render actually did.
type Stats struct {
	TextFilled    int `json:"text_filled"`
	CheckboxesSet int `json:"checkboxes_set"`
	Skipped       int `json:"skipped"`
}

// Fill parses template bytes, applies vals and serializes the result.
// An empty plan returns the input bytes unchanged with zero stats; the
// no-op does not require the bytes to be parseable.
func Fill(ref string, data []byte, vals Values) ([]byte, Stats, error) {
	if vals.empty() {
		return data, Stats{}, nil
	}
	tpl, err := Load(ref, data)
	if err != nil {
		return nil, Stats{}, err
	}
	return tpl.Render(vals)
}

// Render applies vals to the loaded template and returns the filled
// bytes. Ids in the plan with no matching widget are counted skipped,
// never raised: field sets legitimately differ across tax years.
func (t *Template) Render(vals Values) ([]byte, Stats, error) {
	if vals.empty() {
		return t.raw, Stats{}, nil
	}
	actions, stats := plan(t.widgets, vals)
	if err := t.execute(actions); err != nil {
		return nil, Stats{}, fmt.Errorf("failed to apply form values: %w", err)
	}
	var buf bytes.Buffer
	if err := api.WriteContext(t.ctx, &buf); err != nil {
		return nil, Stats{}, fmt.Errorf("failed to serialize filled form: %w", err)
	}
	return buf.Bytes(), stats, nil
}

// action is one planned mutation against a single widget.
type action struct {
	w        *widget
	text     string
	on       bool
	selected int   // group: kid index to turn on, -1 for none
	clears   []int // group: kid indexes to force off
}

// plan walks every widget exactly once and decides what, if anything,
// the value maps ask of it. Pure: no pdfcpu state is touched, which is
// what makes the skip/selection logic unit-testable without fixtures.
func plan(widgets []widget, vals Values) ([]action, Stats) {
	var actions []action
	var stats Stats
	consumed := 0

	for i := range widgets {
		w := &widgets[i]
		switch w.kind {
		case textWidget:
			s, ok := vals.Text[w.name]
			if !ok {
				continue
			}
			actions = append(actions, action{w: w, text: s})
			stats.TextFilled++
			consumed++

		case checkboxWidget:
			on, ok := vals.Checks[w.name]
			if !ok {
				continue
			}
			actions = append(actions, action{w: w, on: on})
			if on {
				stats.CheckboxesSet++
			}
			consumed++

		case groupWidget:
			a := action{w: w, selected: -1}
			addressed := false
			for k, kid := range w.kids {
				on, ok := vals.Checks[kid.memberID]
				if !ok {
					continue
				}
				addressed = true
				consumed++
				if on {
					a.selected = k
				} else {
					a.clears = append(a.clears, k)
				}
			}
			if !addressed {
				continue
			}
			if a.selected >= 0 {
				stats.CheckboxesSet++
			}
			actions = append(actions, a)
		}
	}

	stats.Skipped = len(vals.Text) + len(vals.Checks) - consumed
	return actions, stats
}

// execute mutates the underlying field dictionaries per the plan and
// flags NeedAppearances so viewers regenerate widget appearances.
func (t *Template) execute(actions []action) error {
	if len(actions) == 0 {
		return nil
	}
	for _, a := range actions {
		switch a.w.kind {
		case textWidget:
			a.w.dict.Update("V", pdfString(a.text))
		case checkboxWidget:
			state := "Off"
			if a.on {
				state = a.w.onValue
			}
			a.w.dict.Update("V", pdftypes.Name(state))
			a.w.dict.Update("AS", pdftypes.Name(state))
		case groupWidget:
			t.executeGroup(a)
		}
	}
	return t.setNeedAppearances()
}

// executeGroup enforces the exclusive invariant at the widget level: at
// most one kid ends up on, and a selection resets every sibling,
// including ones the plan never addressed.
func (t *Template) executeGroup(a action) {
	if a.selected >= 0 {
		on := a.w.kids[a.selected].onValue
		a.w.dict.Update("V", pdftypes.Name(on))
		for k, kid := range a.w.kids {
			state := "Off"
			if k == a.selected {
				state = on
			}
			kid.dict.Update("AS", pdftypes.Name(state))
		}
		return
	}
	// No winner: clear only explicitly deselected members, dropping the
	// group value if it pointed at one of them.
	for _, k := range a.clears {
		kid := a.w.kids[k]
		kid.dict.Update("AS", pdftypes.Name("Off"))
		if v := a.w.dict.NameEntry("V"); v != nil && *v == kid.onValue {
			a.w.dict.Update("V", pdftypes.Name("Off"))
		}
	}
}

func (t *Template) setNeedAppearances() error {
	catalog, err := t.ctx.Catalog()
	if err != nil {
		return err
	}
	obj, found := catalog.Find("AcroForm")
	if !found {
		return nil
	}
	acro, err := t.ctx.DereferenceDict(obj)
	if err != nil {
		return err
	}
	acro.Update("NeedAppearances", pdftypes.Boolean(true))
	return nil
}

// pdfString encodes a text value as a UTF-16BE hex literal with BOM,
// valid for any field content without literal-string escaping concerns.
func pdfString(s string) pdftypes.HexLiteral {
	units := utf16.Encode([]rune(s))
	buf := make([]byte, 0, 2*len(units)+2)
	buf = append(buf, 0xFE, 0xFF)
	for _, u := range units {
		buf = append(buf, byte(u>>8), byte(u))
	}
	return pdftypes.NewHexLiteral(buf)
}
