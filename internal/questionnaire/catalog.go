package questionnaire

import (
	"bytes"
	"embed"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures/catalog.yaml
var fixtures embed.FS

// DefaultCatalog is the built-in seed catalog.
func DefaultCatalog() (Catalog, error) {
	b, err := fixtures.ReadFile("fixtures/catalog.yaml")
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog fixture: %w", err)
	}
	return LoadCatalog(bytes.NewReader(b))
}

func LoadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}
