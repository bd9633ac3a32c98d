// Package openapi builds the OpenAPI 3.0 document of the service by
// reflecting on the request and response types of registered operations.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// Content types used by the operations.
const (
	JSON      = "application/json"
	Multipart = "multipart/form-data"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces an OpenAPI 3.0 document from registered operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	operations  []Operation
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// Operation describes one endpoint.
type Operation struct {
	ID          string
	Method      string
	Path        string
	Summary     string
	Tag         string
	PathParams  []string
	QueryParams []string

	// Request is a struct whose fields describe the body, sent as
	// RequestType. Nil for no body.
	Request     any
	RequestType string

	// Responses lists the documented responses by status code.
	Responses []Response
}

// Response is one documented response of an operation.
type Response struct {
	Status      string
	Description string
	Model       any    // nil for a body without schema
	ContentType string // JSON when empty and Model is set
}

// Option configures the generator.
type Option func(*Generator)

// WithTitle sets the API title.
func WithTitle(title string) Option {
	return func(g *Generator) {
		g.title = title
	}
}

// WithVersion sets the API version.
func WithVersion(version string) Option {
	return func(g *Generator) {
		g.version = version
	}
}

// WithDescription sets the API description.
func WithDescription(description string) Option {
	return func(g *Generator) {
		g.description = description
	}
}

// WithServer adds a server URL.
func WithServer(url string) Option {
	return func(g *Generator) {
		g.servers = append(g.servers, url)
	}
}

// NewGenerator creates a new OpenAPI generator.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		title:   "API",
		version: "0.0.0",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

// Register adds an operation to the document.
func (g *Generator) Register(op Operation) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, op)
	g.cachedSpec = nil
}

// Generate produces the OpenAPI document.
func (g *Generator) Generate() *openapi3.T {
	g.mu.RLock()
	if g.cachedSpec != nil {
		spec := g.cachedSpec
		g.mu.RUnlock()
		return spec
	}
	g.mu.RUnlock()

	g.mu.Lock()
	defer g.mu.Unlock()

	// Double-check after acquiring write lock
	if g.cachedSpec != nil {
		return g.cachedSpec
	}

	spec := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       g.title,
			Version:     g.version,
			Description: g.description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}
	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	for _, op := range g.operations {
		g.addOperation(spec, op)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the document.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", JSON)
		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Operation Generation
// =============================================================================

func (g *Generator) addOperation(spec *openapi3.T, op Operation) {
	operation := &openapi3.Operation{
		OperationID: op.ID,
		Summary:     op.Summary,
		Responses:   &openapi3.Responses{},
	}
	if op.Tag != "" {
		operation.Tags = []string{op.Tag}
	}

	for _, name := range op.PathParams {
		operation.Parameters = append(operation.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter(name).WithSchema(openapi3.NewStringSchema()),
		})
	}
	for _, name := range op.QueryParams {
		operation.Parameters = append(operation.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(name).WithSchema(openapi3.NewStringSchema()),
		})
	}

	if op.Request != nil {
		contentType := op.RequestType
		if contentType == "" {
			contentType = JSON
		}
		operation.RequestBody = &openapi3.RequestBodyRef{
			Value: &openapi3.RequestBody{
				Required: true,
				Content:  openapi3.NewContentWithSchemaRef(g.schemaRef(spec, op.Request), []string{contentType}),
			},
		}
	}

	for _, resp := range op.Responses {
		response := openapi3.NewResponse().WithDescription(resp.Description)
		if resp.Model != nil || resp.ContentType != "" {
			contentType := resp.ContentType
			if contentType == "" {
				contentType = JSON
			}
			schema := &openapi3.SchemaRef{Value: openapi3.NewBytesSchema()}
			if resp.Model != nil {
				schema = g.schemaRef(spec, resp.Model)
			} else {
				schema.Value.Format = "binary"
			}
			response.WithContent(openapi3.NewContentWithSchemaRef(schema, []string{contentType}))
		}
		operation.Responses.Set(resp.Status, &openapi3.ResponseRef{Value: response})
	}

	item := spec.Paths.Value(op.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(op.Path, item)
	}
	item.SetOperation(op.Method, operation)
}

// schemaRef registers model under components and returns a reference.
func (g *Generator) schemaRef(spec *openapi3.T, model any) *openapi3.SchemaRef {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if _, ok := spec.Components.Schemas[t.Name()]; !ok {
		spec.Components.Schemas[t.Name()] = g.extractSchema(t)
	}
	return openapi3.NewSchemaRef("#/components/schemas/"+t.Name(), nil)
}

// =============================================================================
// Schema Generation
// =============================================================================

// extractSchema extracts an OpenAPI schema from a Go struct type.
func (g *Generator) extractSchema(t reflect.Type) *openapi3.SchemaRef {
	schema := &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: make(openapi3.Schemas),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		name := field.Name
		parts := strings.Split(jsonTag, ",")
		if parts[0] != "" {
			name = parts[0]
		}

		propSchema := g.goTypeToSchema(field.Type)
		if format := field.Tag.Get("format"); format != "" && propSchema.Value != nil {
			propSchema.Value.Format = format
		}
		schema.Properties[name] = propSchema

		if field.Type.Kind() != reflect.Ptr && !strings.Contains(jsonTag, "omitempty") {
			schema.Required = append(schema.Required, name)
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

// goTypeToSchema converts a Go type to an OpenAPI schema.
func (g *Generator) goTypeToSchema(t reflect.Type) *openapi3.SchemaRef {
	switch t.Kind() {
	case reflect.String:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "float"}}

	case reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}, Format: "double"}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:  &openapi3.Types{"array"},
				Items: g.goTypeToSchema(t.Elem()),
			},
		}

	case reflect.Map:
		return &openapi3.SchemaRef{
			Value: &openapi3.Schema{
				Type:                 &openapi3.Types{"object"},
				AdditionalProperties: openapi3.AdditionalProperties{Schema: g.goTypeToSchema(t.Elem())},
			},
		}

	case reflect.Ptr:
		schema := g.goTypeToSchema(t.Elem())
		if schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		if t == reflect.TypeOf(time.Time{}) {
			return &openapi3.SchemaRef{
				Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"},
			}
		}
		return g.extractSchema(t)

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}
