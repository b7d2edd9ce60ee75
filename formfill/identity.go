package formfill

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/openfiling/formfill/internal/normalize"
	"github.com/openfiling/formfill/types"
)

// documentNamespace is the fixed UUIDv5 namespace for document identity.
// Changing it forks the lineage of every document; never do that.
var documentNamespace = uuid.MustParse("9c3b54f0-2f51-4c3d-9b7e-6a1d08c2e5a4")

// DocumentID derives the stable identity of a logical document from the
// form type, tax year and normalized taxpayer identity. The same inputs
// always produce the same id, independent of the value map, so repeat
// fills version one lineage instead of forking new documents.
func DocumentID(formType string, taxYear int, identity types.Identity) string {
	seed := fmt.Sprintf("%s/%d/%s",
		strings.ToLower(strings.TrimSpace(formType)),
		taxYear,
		normalize.Identity(identity.Attributes),
	)
	return uuid.NewSHA1(documentNamespace, []byte(seed)).String()
}

// identityPath builds the storage-key segment for a taxpayer: a slug of
// the name attribute plus a short stable disambiguator from the document
// id, so two "jane smith"s never share a directory.
func identityPath(identity types.Identity, documentID string) string {
	short := strings.ReplaceAll(documentID, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	seg := normalize.PathSegment(identity.Attributes["name"])
	if seg == "" {
		return short
	}
	return seg + "-" + short
}

// StorageKey builds the artifact key for one version:
//
//	filled_forms/<identity_path>/<form_type>/<tax_year>/v<NNN>_<label>
//
// The version segment is zero-padded to three digits so keys sort
// lexicographically by version, and the label carries the form category.
func StorageKey(tmpl *types.FormTemplate, identityPath string, version int) string {
	label := normalize.PathSegment(tmpl.Category)
	if label == "" {
		label = "form"
	}
	return fmt.Sprintf("filled_forms/%s/%s/%d/v%03d_%s.pdf",
		identityPath,
		strings.ToLower(strings.TrimSpace(tmpl.FormType)),
		tmpl.TaxYear,
		version,
		label,
	)
}

// versionRecordKey is where one version's sidecar record lives in the
// object store, enabling the listing-based history fallback when the
// index is unavailable.
func versionRecordKey(documentID string, version int) string {
	return fmt.Sprintf("versions/%s/v%03d.json", documentID, version)
}

func versionRecordPrefix(documentID string) string {
	return fmt.Sprintf("versions/%s/", documentID)
}
