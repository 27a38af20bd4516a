package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"eavview/internal/domain/eav"
	"eavview/internal/errs"
)

//go:embed default_catalog.toml
var defaultCatalog []byte

// BuiltinName is reported as the source of the embedded catalog.
const BuiltinName = "builtin"

// Load reads the catalog at path, or the built-in CustLight catalog when
// path is empty. Files ending in .yaml or .yml are read as YAML, anything
// else as TOML. The result is normalized and validated.
func Load(path string) (eav.Catalog, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Parse(defaultCatalog)
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return eav.Catalog{}, errs.Wrapf(err, "read catalog %q", trimmed)
	}
	parse := Parse
	switch strings.ToLower(filepath.Ext(trimmed)) {
	case ".yaml", ".yml":
		parse = ParseYAML
	}
	catalog, err := parse(raw)
	if err != nil {
		return eav.Catalog{}, errs.Wrapf(err, "load catalog %q", trimmed)
	}
	return catalog, nil
}

// Parse decodes a TOML catalog. Unknown keys are rejected so a misspelled
// option does not silently fall back to its default.
func Parse(raw []byte) (eav.Catalog, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return eav.Catalog{}, errors.New("catalog is empty")
	}

	decoder := toml.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()

	var catalog eav.Catalog
	if err := decoder.Decode(&catalog); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return eav.Catalog{}, errors.New("unknown catalog keys: " + strict.String())
		}
		return eav.Catalog{}, errs.Wrap(err, "decode catalog")
	}

	return finish(catalog)
}

// ParseYAML decodes the same catalog written as YAML.
func ParseYAML(raw []byte) (eav.Catalog, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return eav.Catalog{}, errors.New("catalog is empty")
	}

	decoder := yaml.NewDecoder(bytes.NewReader(raw))
	decoder.KnownFields(true)

	var catalog eav.Catalog
	if err := decoder.Decode(&catalog); err != nil {
		return eav.Catalog{}, errs.Wrap(err, "decode catalog")
	}
	return finish(catalog)
}

func finish(catalog eav.Catalog) (eav.Catalog, error) {
	catalog = catalog.Normalized()
	if err := catalog.Validate(); err != nil {
		return eav.Catalog{}, err
	}
	return catalog, nil
}

// SourceName describes where a catalog comes from for logs and status.
func SourceName(path string) string {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return trimmed
	}
	return BuiltinName
}

// Encode renders a catalog back to TOML.
func Encode(catalog eav.Catalog) ([]byte, error) {
	raw, err := toml.Marshal(catalog)
	if err != nil {
		return nil, errs.Wrap(err, "encode catalog")
	}
	return raw, nil
}

// Schema returns the JSON Schema of the catalog file format, keyed by the
// TOML field names. Editors can validate TOML and YAML catalogs with it.
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		FieldNameTag:               "toml",
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
	}
	schema := reflector.Reflect(&eav.Catalog{})
	schema.Title = "eavview catalog"

	raw, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, "encode catalog schema")
	}
	return raw, nil
}
