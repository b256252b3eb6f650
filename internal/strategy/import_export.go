package strategy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ordinalkernel/tradekernel/internal/validation"
)

// ExportFormat specifies the output format for document export.
type ExportFormat string

const (
	FormatYAML ExportFormat = "yaml"
	FormatJSON ExportFormat = "json"
)

// ExportOptions configures document export behavior.
type ExportOptions struct {
	// Format specifies the output format (yaml or json)
	Format ExportFormat

	// IncludeMetadata stamps UpdatedAt on the copy and fills an empty
	// id, schema version or source
	IncludeMetadata bool

	// PrettyPrint enables indented output
	PrettyPrint bool

	// AddComments adds a YAML header comment (YAML only)
	AddComments bool
}

// DefaultExportOptions returns the default export options.
func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		Format:          FormatYAML,
		IncludeMetadata: true,
		PrettyPrint:     true,
		AddComments:     true,
	}
}

// ImportOptions configures document import behavior.
type ImportOptions struct {
	// ValidateStrict performs full schema validation (default true)
	ValidateStrict bool

	// GenerateNewID assigns a fresh id to the imported document
	GenerateNewID bool

	// OverrideMetadata replaces the imported metadata when set
	OverrideMetadata *Metadata
}

// DefaultImportOptions returns the default import options.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{
		ValidateStrict: true,
		GenerateNewID:  true,
	}
}

// Export serializes a document to the requested format.
func Export(doc *Document, opts ExportOptions) ([]byte, error) {
	if doc == nil {
		return nil, fmt.Errorf("strategy: document cannot be nil")
	}

	exportDoc := *doc.Clone()
	// Clone rotates identity for forking; an export keeps it.
	exportDoc.Metadata.ID = doc.Metadata.ID
	exportDoc.Metadata.CreatedAt = doc.Metadata.CreatedAt
	exportDoc.Metadata.Source = doc.Metadata.Source

	if opts.IncludeMetadata {
		exportDoc.Metadata.UpdatedAt = time.Now().UTC()
		if exportDoc.Metadata.ID == "" {
			exportDoc.Metadata.ID = uuid.NewString()
		}
		if exportDoc.Metadata.SchemaVersion == "" {
			exportDoc.Metadata.SchemaVersion = SchemaVersion
		}
		if exportDoc.Metadata.Source == "" {
			exportDoc.Metadata.Source = "export"
		}
	}

	switch opts.Format {
	case FormatYAML:
		return exportToYAML(&exportDoc, opts)
	case FormatJSON:
		return exportToJSON(&exportDoc, opts)
	default:
		return nil, fmt.Errorf("strategy: unsupported export format %q", opts.Format)
	}
}

func exportToYAML(doc *Document, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.AddComments {
		buf.WriteString("# TradeKernel strategy document\n")
		buf.WriteString(fmt.Sprintf("# Schema version: %s\n", doc.Metadata.SchemaVersion))
		buf.WriteString(fmt.Sprintf("# Exported: %s\n", time.Now().UTC().Format(time.RFC3339)))
		buf.WriteString("\n")
	}

	encoder := yaml.NewEncoder(&buf)
	if opts.PrettyPrint {
		encoder.SetIndent(2)
	}

	if err := encoder.Encode(doc); err != nil {
		return nil, fmt.Errorf("strategy: encode document to YAML: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("strategy: close YAML encoder: %w", err)
	}

	return buf.Bytes(), nil
}

func exportToJSON(doc *Document, opts ExportOptions) ([]byte, error) {
	if opts.PrettyPrint {
		return json.MarshalIndent(doc, "", "  ")
	}
	return json.Marshal(doc)
}

// ExportToFile exports a document to path, inferring the format from the
// extension when opts.Format is empty.
func ExportToFile(doc *Document, path string, opts ExportOptions) error {
	if opts.Format == "" {
		opts.Format = formatFromExtension(path)
	}

	data, err := Export(doc, opts)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Import parses and validates a document from data. The input may be
// YAML or JSON; YAML parsing handles both since JSON is a YAML subset.
// Older schema versions are migrated forward before validation.
func Import(data []byte, opts ImportOptions) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("strategy: parse document: %w", err)
	}

	sanitizeDocument(&doc)

	if doc.Metadata.SchemaVersion == "" {
		doc.Metadata.SchemaVersion = SchemaVersion
	}
	if err := Migrate(&doc); err != nil {
		return nil, err
	}

	ApplyDefaults(&doc)

	if opts.OverrideMetadata != nil {
		id, created := doc.Metadata.ID, doc.Metadata.CreatedAt
		doc.Metadata = *opts.OverrideMetadata
		if doc.Metadata.ID == "" {
			doc.Metadata.ID = id
		}
		if doc.Metadata.CreatedAt.IsZero() {
			doc.Metadata.CreatedAt = created
		}
		if doc.Metadata.SchemaVersion == "" {
			doc.Metadata.SchemaVersion = SchemaVersion
		}
	}
	if opts.GenerateNewID || doc.Metadata.ID == "" {
		doc.Metadata.ID = uuid.NewString()
	}
	if doc.Metadata.Source == "" {
		doc.Metadata.Source = "import"
	}
	doc.Metadata.UpdatedAt = time.Now().UTC()

	if opts.ValidateStrict {
		if err := Validate(&doc); err != nil {
			return nil, err
		}
	}

	return &doc, nil
}

// ImportFromFile imports a document from path.
func ImportFromFile(path string, opts ImportOptions) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("strategy: read document file: %w", err)
	}
	return Import(data, opts)
}

// sanitizeDocument normalizes untrusted string fields before validation.
func sanitizeDocument(doc *Document) {
	doc.Metadata.Name = validation.SanitizeInput(doc.Metadata.Name)
	doc.Metadata.Description = validation.SanitizeInput(doc.Metadata.Description)
	doc.Metadata.Author = validation.SanitizeInput(doc.Metadata.Author)
	for i, tag := range doc.Metadata.Tags {
		doc.Metadata.Tags[i] = validation.SanitizeInput(tag)
	}
	for i, symbol := range doc.Execution.Symbols {
		doc.Execution.Symbols[i] = validation.SanitizeSymbol(symbol)
	}
}

func formatFromExtension(path string) ExportFormat {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	default:
		return FormatYAML
	}
}
