package formfill

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/openfiling/formfill/internal/normalize"
	"github.com/openfiling/formfill/types"
)

// FieldValues is the canonical render plan: physical widget id to the
// value the renderer should apply. Checkbox state is a plain boolean
// everywhere inside the engine; the PDF on-value name is the renderer's
// concern alone.
type FieldValues struct {
	Text   map[string]string
	Checks map[string]bool

	// Conflicts lists exclusive-group collisions (multiple truthy
	// aliases in one call). Informational; last processed alias won.
	Conflicts []string
}

// Empty reports whether the plan carries no values at all.
func (fv FieldValues) Empty() bool {
	return len(fv.Text) == 0 && len(fv.Checks) == 0
}

// Format converts resolved semantic values into the canonical render
// plan for tmpl.
//
// Text amounts get thousands separators and two decimals, except the
// number zero which renders as the literal "0" per official form
// convention for explicit zero lines. Absent values never appear in the
// plan, so the template's existing content is left untouched; a text
// value that formats to the empty string is dropped for the same
// reason. For an exclusive group the last truthy alias in input order
// wins and every sibling is explicitly deselected, including members
// never referenced in this call: the template may arrive pre-selected
// from a prior version. A group addressed only by falsy aliases has no
// winner, and then only the aliases actually supplied are cleared.
func Format(tmpl *types.FormTemplate, res Resolution) FieldValues {
	fv := FieldValues{
		Text:   make(map[string]string),
		Checks: make(map[string]bool),
	}

	// option name per group for the winning alias, last truthy wins
	groupWinner := make(map[string]string)
	// every option a value in this call addressed, truthy or not
	groupAddressed := make(map[string][]string)

	for _, rv := range res.Fields {
		if rv.Value == nil {
			continue
		}
		switch rv.Spec.Kind {
		case types.Text:
			if s, ok := formatText(rv.Spec, rv.Value); ok && s != "" {
				fv.Text[rv.Spec.PhysicalID] = s
			}
		case types.Checkbox:
			fv.Checks[rv.Spec.PhysicalID] = truthy(rv.Value)
		case types.ExclusiveGroup:
			group, option, selected := groupSelection(rv)
			if group == "" {
				continue
			}
			if selected {
				if prev, dup := groupWinner[group]; dup && prev != option {
					fv.Conflicts = append(fv.Conflicts,
						fmt.Sprintf("group %s: %s overrides %s", group, option, prev))
				}
				groupWinner[group] = option
			}
			groupAddressed[group] = append(groupAddressed[group], option)
		}
	}

	// Materialize group state. A winner turns every member on or off;
	// with no winner the call only deselected, and unreferenced siblings
	// keep whatever state the template arrived with.
	for group, addressed := range groupAddressed {
		options := groupOptions(tmpl, group)
		winner, won := groupWinner[group]
		if won {
			for option, physicalID := range options {
				fv.Checks[physicalID] = option == winner
			}
			continue
		}
		for _, option := range addressed {
			if physicalID, ok := options[option]; ok {
				fv.Checks[physicalID] = false
			}
		}
	}
	return fv
}

// groupSelection extracts (group, option, truthy) from one resolved
// exclusive-group value. An alias entry names its group and option
// directly; the group entry itself takes the option as its value.
func groupSelection(rv ResolvedValue) (string, string, bool) {
	if rv.Spec.Group != "" {
		return normalize.Key(rv.Spec.Group), rv.Spec.Option, truthy(rv.Value)
	}
	option, ok := rv.Value.(string)
	if !ok || option == "" {
		return "", "", false
	}
	return normalize.Key(rv.Key), strings.ToLower(strings.TrimSpace(option)), true
}

// groupOptions returns the option-to-physical-id table for a group,
// looked up from the template's catalog entry for the group itself.
func groupOptions(tmpl *types.FormTemplate, group string) map[string]string {
	spec, ok := tmpl.Fields[group]
	if !ok || spec.Kind != types.ExclusiveGroup {
		return nil
	}
	return spec.Options
}

// formatText renders one text value per the field's display contract.
// The second return is false when the value should leave the field
// untouched.
func formatText(spec types.FieldSpec, v any) (string, bool) {
	if spec.Display == types.DisplayPlain {
		if f, ok := numeric(v); ok {
			return formatAmount(f), true
		}
	}
	s := stringify(v)
	switch spec.Display {
	case types.DisplayUpper:
		return strings.ToUpper(s), true
	case types.DisplayDigits:
		return digitsOnly(s), true
	case types.DisplaySSN:
		d := digitsOnly(s)
		if len(d) == 9 {
			return d[:3] + "-" + d[3:5] + "-" + d[5:], true
		}
		return d, true
	case types.DisplayEIN:
		d := digitsOnly(s)
		if len(d) == 9 {
			return d[:2] + "-" + d[2:], true
		}
		return d, true
	default:
		return s, true
	}
}

// numeric reports whether v is a number (or a plain decimal string) and
// returns it as float64.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// formatAmount renders a monetary amount with thousands separators and
// exactly two decimals. Zero renders as the literal "0": official forms
// distinguish an explicit zero line from a blank one.
func formatAmount(f float64) string {
	if f == 0 {
		return "0"
	}
	s := strconv.FormatFloat(math.Abs(f), 'f', 2, 64)
	intPart, fracPart, _ := strings.Cut(s, ".")

	var groups []string
	for len(intPart) > 3 {
		groups = append([]string{intPart[len(intPart)-3:]}, groups...)
		intPart = intPart[:len(intPart)-3]
	}
	groups = append([]string{intPart}, groups...)

	sign := ""
	if f < 0 {
		sign = "-"
	}
	return sign + strings.Join(groups, ",") + "." + fracPart
}

func stringify(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// truthy folds the checkbox input conventions seen in the wild down to
// one boolean. Strings "", "false", "no", "0" and "off" are falsy; any
// other non-empty string is truthy.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "", "false", "no", "0", "off":
			return false
		}
		return true
	default:
		if f, ok := numeric(v); ok {
			return f != 0
		}
		return false
	}
}
