// Package templates serves the starter-template catalog shown on the
// dashboard's "new application" screen. The catalog is read-only: a built-in
// set, optionally replaced by a YAML file.
package templates

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/skydeck-host/skydeck/internal/app/domain/application"
	apperrors "github.com/skydeck-host/skydeck/internal/errors"
)

// Template describes one starter template.
type Template struct {
	ID          string           `yaml:"id" json:"id"`
	Name        string           `yaml:"name" json:"name"`
	Kind        application.Kind `yaml:"kind" json:"kind"`
	Description string           `yaml:"description" json:"description"`
	Tags        []string         `yaml:"tags" json:"tags"`
}

// builtin is the catalog shipped with the binary.
var builtin = []Template{
	{ID: "landing-pro", Name: "Landing Pro", Kind: application.KindHTML,
		Description: "Conversion-focused landing page with hero, pricing and contact sections.",
		Tags:        []string{"landing", "marketing"}},
	{ID: "portfolio-creative", Name: "Creative Portfolio", Kind: application.KindHTML,
		Description: "Single-page portfolio with gallery grid and about section.",
		Tags:        []string{"portfolio", "gallery"}},
	{ID: "saas-landing", Name: "SaaS Landing", Kind: application.KindHTML,
		Description: "Product landing page with feature matrix and signup form.",
		Tags:        []string{"landing", "saas"}},
	{ID: "ecommerce-store", Name: "E-commerce Store", Kind: application.KindHTML,
		Description: "Static storefront with product cards and cart placeholder.",
		Tags:        []string{"shop", "storefront"}},
	{ID: "express-api", Name: "Express API", Kind: application.KindNodeJS,
		Description: "REST API skeleton on Express with routing and JSON middleware.",
		Tags:        []string{"api", "express"}},
	{ID: "fullstack-react", Name: "Fullstack React", Kind: application.KindNodeJS,
		Description: "React frontend with a Node backend serving the built bundle.",
		Tags:        []string{"react", "fullstack"}},
	{ID: "realtime-chat", Name: "Realtime Chat", Kind: application.KindNodeJS,
		Description: "WebSocket chat room with rooms and message history.",
		Tags:        []string{"websocket", "chat"}},
	{ID: "blog-cms", Name: "Blog CMS", Kind: application.KindNodeJS,
		Description: "Markdown-backed blog with an admin editing surface.",
		Tags:        []string{"blog", "cms"}},
}

// Catalog lists starter templates.
type Catalog struct {
	templates []Template
}

// NewCatalog returns the built-in catalog, or the one loaded from
// catalogPath when it is non-empty.
func NewCatalog(catalogPath string) (*Catalog, error) {
	if catalogPath == "" {
		return &Catalog{templates: builtin}, nil
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	var loaded struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse template catalog: %w", err)
	}
	if len(loaded.Templates) == 0 {
		return nil, fmt.Errorf("template catalog %s declares no templates", catalogPath)
	}
	for i, tpl := range loaded.Templates {
		if tpl.ID == "" || tpl.Name == "" {
			return nil, fmt.Errorf("template catalog entry %d is missing id or name", i)
		}
		if !tpl.Kind.Valid() {
			return nil, fmt.Errorf("template %s has unknown kind %q", tpl.ID, tpl.Kind)
		}
	}
	return &Catalog{templates: loaded.Templates}, nil
}

// List returns all templates, or only those of one kind when kind is
// non-empty.
func (c *Catalog) List(kind string) ([]Template, error) {
	if kind == "" {
		out := make([]Template, len(c.templates))
		copy(out, c.templates)
		return out, nil
	}
	k := application.Kind(kind)
	if !k.Valid() {
		return nil, apperrors.Validation("kind must be html or nodejs")
	}
	var out []Template
	for _, tpl := range c.templates {
		if tpl.Kind == k {
			out = append(out, tpl)
		}
	}
	return out, nil
}

// Get returns one template by ID.
func (c *Catalog) Get(id string) (Template, error) {
	for _, tpl := range c.templates {
		if tpl.ID == id {
			return tpl, nil
		}
	}
	return Template{}, apperrors.NotFound("template", id)
}
