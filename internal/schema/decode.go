package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/tailscale/hujson"
	"sigs.k8s.io/yaml"
)

// Contexts a legacy document's root-level fields are spread over when they
// carry no show_in.
var legacyContexts = []string{"list", "form", "detail"}

// Decode parses a JSON document, normalizes it and validates it.
func Decode(data []byte) (*SchemaDoc, error) {
	var doc SchemaDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		if errors.Is(err, ErrInvalid) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	normalize(&doc)
	if err := Validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DecodeJSONC accepts JSON with comments and trailing commas.
func DecodeJSONC(data []byte) (*SchemaDoc, error) {
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Decode(std)
}

// DecodeYAML converts YAML to JSON before decoding.
func DecodeYAML(data []byte) (*SchemaDoc, error) {
	j, err := yaml.YAMLToJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Decode(j)
}

// DecodeFile picks the decoder from the file extension.
func DecodeFile(name string, data []byte) (*SchemaDoc, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return Decode(data)
	case ".jsonc":
		return DecodeJSONC(data)
	case ".yaml", ".yml":
		return DecodeYAML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file extension %q", ErrInvalid, filepath.Ext(name))
	}
}

// IsSchemaFile reports whether DecodeFile understands the file name.
func IsSchemaFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc", ".yaml", ".yml":
		return true
	}
	return false
}

func normalize(doc *SchemaDoc) {
	doc.Model = strings.TrimSpace(doc.Model)
	doc.PrimaryKey = strings.TrimSpace(doc.PrimaryKey)

	if len(doc.Contexts) == 0 && len(doc.Fields) > 0 {
		doc.Contexts = make(map[string]ContextDef)
		for _, f := range doc.Fields {
			if len(f.ShowIn) == 0 {
				f.ShowIn = slices.Clone(legacyContexts)
			}
			for _, name := range f.ShowIn {
				c := doc.Contexts[name]
				c.Fields = append(c.Fields, f)
				doc.Contexts[name] = c
			}
		}
	}

	for name, c := range doc.Contexts {
		for i := range c.Fields {
			if len(c.Fields[i].ShowIn) == 0 {
				c.Fields[i].ShowIn = []string{name}
			}
		}
		doc.Contexts[name] = c
	}
}

// Validate checks the structural rules of a normalized document.
func Validate(doc *SchemaDoc) error {
	if doc.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalid)
	}
	if doc.PrimaryKey == "" {
		return fmt.Errorf("%w: model %q: primary_key is required", ErrInvalid, doc.Model)
	}
	if len(doc.Contexts) == 0 {
		return fmt.Errorf("%w: model %q declares no contexts", ErrInvalid, doc.Model)
	}

	for _, name := range doc.ContextNames() {
		for _, f := range doc.Contexts[name].Fields {
			if f.Validation == nil || f.Validation.Regex == "" {
				continue
			}
			if _, err := regexp.Compile(f.Validation.Regex); err != nil {
				return fmt.Errorf("%w: model %q field %q: bad regex: %v", ErrInvalid, doc.Model, f.Key, err)
			}
		}
	}

	for _, d := range doc.AllDetails() {
		if strings.TrimSpace(d.Model) == "" {
			return fmt.Errorf("%w: model %q: detail without model", ErrInvalid, doc.Model)
		}
	}

	seen := make(map[string]bool, len(doc.Relationships))
	for _, r := range doc.Relationships {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("%w: model %q: relationship without name", ErrInvalid, doc.Model)
		}
		if seen[r.Name] {
			return fmt.Errorf("%w: model %q: duplicate relationship %q", ErrInvalid, doc.Model, r.Name)
		}
		seen[r.Name] = true
		switch r.Type {
		case OneToMany, ManyToMany:
		default:
			return fmt.Errorf("%w: model %q: relationship %q has unknown type %q", ErrInvalid, doc.Model, r.Name, r.Type)
		}
	}
	return nil
}
