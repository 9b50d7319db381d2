package template

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/kiln-io/kiln/pkg/errors"
	"github.com/kiln-io/kiln/pkg/template/cfn"
	"github.com/kiln-io/kiln/pkg/template/hot"
	"github.com/kiln-io/kiln/pkg/template/internal"
)

// Loader loads and parses templates.
type Loader interface {
	// Load parses a template from the given path
	Load(path string) (*Template, error)

	// LoadFromBytes parses a template from raw bytes
	LoadFromBytes(data []byte, source string) (*Template, error)
}

// dialectAdapter parses and transforms one dialect.
type dialectAdapter func(data []byte) (*internal.InternalTemplate, error)

// dialectDetectingLoader implements Loader with automatic dialect detection.
type dialectDetectingLoader struct {
	adapters map[string]dialectAdapter
}

// NewLoader creates a new template loader that detects the dialect from the
// document's version marker key.
func NewLoader() Loader {
	hotParser, hotTransformer := hot.NewParser(), hot.NewTransformer()
	cfnParser, cfnTransformer := cfn.NewParser(), cfn.NewTransformer()

	return &dialectDetectingLoader{
		adapters: map[string]dialectAdapter{
			hot.VersionKey: func(data []byte) (*internal.InternalTemplate, error) {
				schema, err := hotParser.ParseBytes(data)
				if err != nil {
					return nil, err
				}
				return hotTransformer.Transform(schema)
			},
			cfn.VersionKey: func(data []byte) (*internal.InternalTemplate, error) {
				schema, err := cfnParser.ParseBytes(data)
				if err != nil {
					return nil, err
				}
				return cfnTransformer.Transform(schema)
			},
		},
	}
}

// Load parses a template from the given path.
func (l *dialectDetectingLoader) Load(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParse, fmt.Sprintf("failed to read %s", path), err)
	}
	return l.LoadFromBytes(data, path)
}

// LoadFromBytes parses a template from raw bytes.
func (l *dialectDetectingLoader) LoadFromBytes(data []byte, source string) (*Template, error) {
	marker, err := l.detectDialect(data)
	if err != nil {
		return nil, err
	}

	it, err := l.adapters[marker](data)
	if err != nil {
		return nil, errors.ParseError(source, err)
	}

	if err := validate(it); err != nil {
		return nil, err
	}

	return &Template{it: it}, nil
}

// detectDialect finds which version marker key the document carries.
func (l *dialectDetectingLoader) detectDialect(data []byte) (string, error) {
	var doc map[string]interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return "", errors.ParseError("template", err)
	}

	for marker := range l.adapters {
		if _, ok := doc[marker]; ok {
			return marker, nil
		}
	}

	return "", errors.ValidationError("template carries no known version marker", map[string]interface{}{
		"known_markers": []string{hot.VersionKey, cfn.VersionKey},
	})
}

var parameterTypes = map[string]bool{
	"string":               true,
	"number":               true,
	"comma_delimited_list": true,
	"json":                 true,
	"boolean":              true,
}

// validate checks the canonical model. Structural errors surface here,
// before any resource action can start.
func validate(it *internal.InternalTemplate) error {
	for name, ip := range it.Parameters {
		if !parameterTypes[ip.Type] {
			return errors.ValidationError(fmt.Sprintf("parameter %q has unknown type %q", name, ip.Type), nil)
		}
		for _, c := range ip.Constraints {
			if c.Kind == internal.ConstraintPattern {
				if _, err := regexp.Compile(c.Pattern); err != nil {
					return errors.ValidationError(fmt.Sprintf("parameter %q has invalid pattern", name), map[string]interface{}{
						"pattern": c.Pattern,
						"error":   err.Error(),
					})
				}
			}
		}
	}

	for name, ir := range it.Resources {
		if ir.Type == "" {
			return errors.ValidationError(fmt.Sprintf("resource %q has no type", name), nil)
		}
		for _, dep := range ir.DependsOn {
			if dep == name {
				return errors.ValidationError(fmt.Sprintf("resource %q depends on itself", name), nil)
			}
		}
	}

	return nil
}
