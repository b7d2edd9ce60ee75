package formfill

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openfiling/formfill/internal/normalize"
	"github.com/openfiling/formfill/types"
)

//go:embed forms/*.yaml
var builtinForms embed.FS

// Catalog is the registry of supported form types and tax years together
// with their curated semantic-alias tables. Alias tables are hand
// verified, never inferred; the resolver's heuristic only runs for keys
// the table does not know.
//
// Lookups are read-mostly and cached process-wide; Register replaces an
// entry and is the only write path.
type Catalog struct {
	locks     *lockManager
	templates map[string]*types.FormTemplate
}

// NewCatalog builds a catalog from the embedded curated alias tables.
func NewCatalog() (*Catalog, error) {
	c := &Catalog{
		locks:     newLockManager(),
		templates: make(map[string]*types.FormTemplate),
	}
	if err := c.loadFS(builtinForms, "forms"); err != nil {
		return nil, fmt.Errorf("failed to load builtin forms: %w", err)
	}
	return c, nil
}

// NewCatalogFromDir builds a catalog from the embedded tables plus every
// *.yaml table found under dir. Directory entries override builtins with
// the same form type and tax year.
func NewCatalogFromDir(dir string) (*Catalog, error) {
	c, err := NewCatalog()
	if err != nil {
		return nil, err
	}
	if err := c.loadFS(os.DirFS(dir), "."); err != nil {
		return nil, fmt.Errorf("failed to load forms from %s: %w", dir, err)
	}
	return c, nil
}

func (c *Catalog) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.Join(root, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		tmpl, err := parseTemplate(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", entry.Name(), err)
		}
		c.Register(tmpl)
	}
	return nil
}

// parseTemplate decodes one alias-table document. Field keys are
// normalized at load time so lookups and table entries always agree, and
// declaration order is captured for the resolver's final tie-break.
func parseTemplate(data []byte) (*types.FormTemplate, error) {
	var doc struct {
		FormType    string    `yaml:"form_type"`
		TaxYear     int       `yaml:"tax_year"`
		Category    string    `yaml:"category"`
		TemplateRef string    `yaml:"template_ref"`
		Fields      yaml.Node `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.FormType == "" || doc.TaxYear == 0 {
		return nil, fmt.Errorf("alias table missing form_type or tax_year")
	}

	tmpl := &types.FormTemplate{
		FormType:    doc.FormType,
		TaxYear:     doc.TaxYear,
		Category:    doc.Category,
		TemplateRef: doc.TemplateRef,
		Fields:      make(map[string]types.FieldSpec),
	}

	// A yaml mapping node stores keys and values as alternating content
	// entries; walking it directly preserves declaration order.
	if doc.Fields.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(doc.Fields.Content); i += 2 {
			name := normalize.Key(doc.Fields.Content[i].Value)
			var spec types.FieldSpec
			if err := doc.Fields.Content[i+1].Decode(&spec); err != nil {
				return nil, fmt.Errorf("field %q: %w", doc.Fields.Content[i].Value, err)
			}
			if spec.Kind == "" {
				spec.Kind = types.Text
			}
			if _, dup := tmpl.Fields[name]; !dup {
				tmpl.FieldOrder = append(tmpl.FieldOrder, name)
			}
			tmpl.Fields[name] = spec
		}
	}
	return tmpl, nil
}

func catalogKey(formType string, taxYear int) string {
	return fmt.Sprintf("%s/%d", strings.ToLower(strings.TrimSpace(formType)), taxYear)
}

// Template returns the curated template for the given form type and tax
// year. Unknown pairs return *types.NotFoundError, which is
// non-retryable and must propagate to the caller unchanged.
func (c *Catalog) Template(formType string, taxYear int) (*types.FormTemplate, error) {
	var tmpl *types.FormTemplate
	_ = c.locks.execute(readOperation, func() error {
		tmpl = c.templates[catalogKey(formType, taxYear)]
		return nil
	})
	if tmpl == nil {
		return nil, &types.NotFoundError{Kind: "form", ID: catalogKey(formType, taxYear)}
	}
	return tmpl, nil
}

// Register adds or replaces a template, invalidating any previously
// cached entry for the same form type and tax year.
func (c *Catalog) Register(tmpl *types.FormTemplate) {
	_ = c.locks.execute(writeOperation, func() error {
		c.templates[catalogKey(tmpl.FormType, tmpl.TaxYear)] = tmpl
		return nil
	})
}

// SupportedForms lists every registered (form_type, category, tax_year)
// sorted by form type then year.
func (c *Catalog) SupportedForms() []types.FormInfo {
	var infos []types.FormInfo
	_ = c.locks.execute(readOperation, func() error {
		for _, tmpl := range c.templates {
			infos = append(infos, types.FormInfo{
				FormType: tmpl.FormType,
				Category: tmpl.Category,
				TaxYear:  tmpl.TaxYear,
			})
		}
		return nil
	})
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].FormType != infos[j].FormType {
			return infos[i].FormType < infos[j].FormType
		}
		return infos[i].TaxYear < infos[j].TaxYear
	})
	return infos
}
