package formfill

import (
	"strings"

	"github.com/openfiling/formfill/internal/normalize"
	"github.com/openfiling/formfill/types"
)

// ResolvedValue pairs one semantic input with its destination spec.
type ResolvedValue struct {
	Key   string
	Spec  types.FieldSpec
	Value any

	// Heuristic marks values resolved by the fallback classifier rather
	// than the curated alias table.
	Heuristic bool
}

// Resolution is the outcome of resolving a full value map against one
// template. Unmapped keys are informational, never an error: the fill
// proceeds with whatever coverage was achieved.
type Resolution struct {
	Fields   []ResolvedValue
	Unmapped []string
}

// roleVocabulary is the fixed set of field-role tokens the heuristic
// classifier scores against, in deterministic priority order.
var roleVocabulary = []string{
	"name", "first", "last", "ssn", "address", "street", "apt", "city",
	"state", "zip", "income", "wage", "withhold", "tax", "credit",
	"deduction", "phone", "email", "routing", "account",
}

// roleDisplay gives each role its canonical text display contract. Roles
// not listed render plain; every role's canonical kind is text.
var roleDisplay = map[string]types.DisplayContract{
	"name":    types.DisplayUpper,
	"first":   types.DisplayUpper,
	"last":    types.DisplayUpper,
	"ssn":     types.DisplaySSN,
	"address": types.DisplayUpper,
	"street":  types.DisplayUpper,
	"city":    types.DisplayUpper,
	"state":   types.DisplayUpper,
	"zip":     types.DisplayDigits,
	"phone":   types.DisplayDigits,
	"routing": types.DisplayDigits,
	"account": types.DisplayDigits,
}

// Resolve maps every semantic key in values to a destination FieldSpec
// for tmpl. The curated alias table is authoritative; the token
// classifier only runs for keys the table does not know. Resolution is
// pure: it never touches template bytes, so specs pointing at physical
// ids the loaded template lacks are filtered later, at render time.
func Resolve(tmpl *types.FormTemplate, values []types.SemanticValue) Resolution {
	var res Resolution
	for _, sv := range values {
		if spec, ok := tmpl.Fields[normalize.Key(sv.Key)]; ok {
			res.Fields = append(res.Fields, ResolvedValue{Key: sv.Key, Spec: spec, Value: sv.Value})
			continue
		}
		spec, ok := resolveHeuristic(tmpl, sv.Key)
		if !ok {
			res.Unmapped = append(res.Unmapped, sv.Key)
			continue
		}
		res.Fields = append(res.Fields, ResolvedValue{Key: sv.Key, Spec: spec, Value: sv.Value, Heuristic: true})
	}
	return res
}

// resolveHeuristic classifies key into a field role and picks the first
// catalog entry (declaration order) that serves that role. A role with
// no catalog entry to borrow a physical id from leaves the key unmapped.
func resolveHeuristic(tmpl *types.FormTemplate, key string) (types.FieldSpec, bool) {
	role, ok := ClassifyRole(key)
	if !ok {
		return types.FieldSpec{}, false
	}
	for _, name := range tmpl.FieldOrder {
		spec := tmpl.Fields[name]
		if spec.Kind != types.Text {
			continue
		}
		if !nameServesRole(name, role) {
			continue
		}
		if display, found := roleDisplay[role]; found && spec.Display == types.DisplayPlain {
			spec.Display = display
		}
		return spec, true
	}
	return types.FieldSpec{}, false
}

// ClassifyRole scores key's tokens against the fixed role vocabulary and
// returns the role with the highest overlap. Ties break by the longest
// token that matched, then by vocabulary order. It is pure and depends
// on no template content.
func ClassifyRole(key string) (string, bool) {
	tokens := normalize.Tokens(key)
	bestRole := ""
	bestScore := 0
	bestTokenLen := 0
	for _, role := range roleVocabulary {
		score := 0
		longest := 0
		for _, tok := range tokens {
			if !tokenMatchesRole(tok, role) {
				continue
			}
			score++
			if len(tok) > longest {
				longest = len(tok)
			}
		}
		if score == 0 {
			continue
		}
		if score > bestScore || (score == bestScore && longest > bestTokenLen) {
			bestRole, bestScore, bestTokenLen = role, score, longest
		}
	}
	return bestRole, bestScore > 0
}

// tokenMatchesRole accepts exact matches, inflected forms extending the
// role ("wages" for wage), and stems sharing the first five letters
// ("withheld" for withhold).
func tokenMatchesRole(tok, role string) bool {
	if tok == role || strings.HasPrefix(tok, role) {
		return true
	}
	return len(tok) >= 5 && len(role) >= 5 && tok[:5] == role[:5]
}

// nameServesRole reports whether a normalized catalog field name can act
// as the destination for a role, matching on the role or its stem.
func nameServesRole(name, role string) bool {
	if strings.Contains(name, role) {
		return true
	}
	return len(role) >= 5 && strings.Contains(name, role[:5])
}
