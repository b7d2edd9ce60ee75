package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfiling/formfill/formfill"
	"github.com/openfiling/formfill/formfill/store"
	"github.com/openfiling/formfill/types"
)

var (
	fillForm     string
	fillYear     int
	valuesPath   string
	identityArgs []string
	templatePath string
)

var fillCmd = &cobra.Command{
	Use:   "fill",
	Short: "Fill a form and store it as the next version",
	RunE:  runFill,
}

var historyCmd = &cobra.Command{
	Use:   "history <document-id>",
	Short: "List all versions of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "List supported form types and tax years",
	RunE:  runForms,
}

func init() {
	fillCmd.Flags().StringVarP(&fillForm, "form", "f", "", "form type, e.g. 1040 (required)")
	fillCmd.Flags().IntVarP(&fillYear, "year", "y", 0, "tax year (required)")
	fillCmd.Flags().StringVar(&valuesPath, "values", "", "YAML file of semantic values (required)")
	fillCmd.Flags().StringArrayVar(&identityArgs, "identity", nil, "identity attribute key=value (repeatable)")
	fillCmd.Flags().StringVar(&templatePath, "template", "", "local template PDF (overrides the store's template)")
	_ = fillCmd.MarkFlagRequired("form")
	_ = fillCmd.MarkFlagRequired("year")
	_ = fillCmd.MarkFlagRequired("values")
}

// newEngine assembles the engine over the local file store.
func newEngine() (*formfill.Engine, error) {
	catalog, err := formfill.NewCatalog()
	if err != nil {
		return nil, err
	}
	objects, err := store.NewFileStore(storeDir)
	if err != nil {
		return nil, err
	}
	idx := indexPath
	if idx == "" {
		idx = filepath.Join(storeDir, "index.json")
	}
	index, err := store.NewIndex(idx)
	if err != nil {
		return nil, err
	}

	opts := []formfill.Option{formfill.WithLogger(slog.Default())}
	if templatePath != "" {
		opts = append(opts, formfill.WithTemplateLoader(fileTemplateLoader{path: templatePath}))
	}
	return formfill.New(catalog, objects, index, opts...), nil
}

// fileTemplateLoader serves one local PDF regardless of the catalog's
// template reference. Handy for trying a new template revision before
// publishing it to the store.
type fileTemplateLoader struct {
	path string
}

func (l fileTemplateLoader) LoadTemplate(_ context.Context, _ string) ([]byte, error) {
	return os.ReadFile(l.path)
}

func runFill(cmd *cobra.Command, _ []string) error {
	values, err := loadValues(valuesPath)
	if err != nil {
		return err
	}
	identity, err := parseIdentity(identityArgs)
	if err != nil {
		return err
	}

	engine, err := newEngine()
	if err != nil {
		return err
	}
	result, err := engine.Fill(cmd.Context(), types.FormInput{
		FormType: fillForm,
		TaxYear:  fillYear,
		Values:   values,
		Identity: identity,
	})
	if err != nil {
		return err
	}

	doc := result.Document
	fmt.Printf("document %s version %d\n", doc.DocumentID, doc.Version)
	fmt.Printf("  stored at   %s (%d bytes)\n", doc.StorageKey, doc.SizeBytes)
	fmt.Printf("  filled      %d text, %d checkboxes, %d skipped\n",
		doc.FieldsFilled, doc.CheckboxesSet, doc.Skipped)
	if len(doc.Unmapped) > 0 {
		fmt.Printf("  unmapped    %s\n", strings.Join(doc.Unmapped, ", "))
	}
	fmt.Printf("  retrieve    %s (expires %s)\n", result.Descriptor.URL, result.Descriptor.ExpiresAt.Format("15:04:05"))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	engine, err := newEngine()
	if err != nil {
		return err
	}
	recs, err := engine.VersionHistory(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	for _, rec := range recs {
		fmt.Printf("v%03d  %s  %8d bytes  %s\n",
			rec.Version, rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.SizeBytes, rec.StorageKey)
	}
	return nil
}

func runForms(_ *cobra.Command, _ []string) error {
	catalog, err := formfill.NewCatalog()
	if err != nil {
		return err
	}
	for _, info := range catalog.SupportedForms() {
		fmt.Printf("%-10s %-20s %d\n", info.FormType, info.Category, info.TaxYear)
	}
	return nil
}

// loadValues reads the semantic value map from YAML, preserving document
// order: for conflicting exclusive-group aliases the last key in the
// file wins.
func loadValues(path string) ([]types.SemanticValue, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read values file: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse values file: %w", err)
	}
	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, fmt.Errorf("values file must be a YAML mapping")
	}
	mapping := doc.Content[0]
	var values []types.SemanticValue
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		var v any
		if err := mapping.Content[i+1].Decode(&v); err != nil {
			return nil, fmt.Errorf("value %q: %w", mapping.Content[i].Value, err)
		}
		values = append(values, types.SemanticValue{Key: mapping.Content[i].Value, Value: v})
	}
	return values, nil
}

func parseIdentity(args []string) (types.Identity, error) {
	attrs := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return types.Identity{}, fmt.Errorf("invalid identity attribute %q, want key=value", arg)
		}
		attrs[k] = v
	}
	return types.Identity{Attributes: attrs}, nil
}
