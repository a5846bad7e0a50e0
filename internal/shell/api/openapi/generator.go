// Package openapi builds the OpenAPI 3.0 document of the pagehost API by
// reflecting on the registered resource models and request/response types.
package openapi

import (
	"encoding/json"
	"net/http"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
)

// =============================================================================
// Generator
// =============================================================================

// Generator produces OpenAPI 3.0 specifications by reflecting on registered
// resources and operations.
type Generator struct {
	title       string
	version     string
	description string
	servers     []string
	resources   []ResourceInfo
	operations  []OperationInfo
	mu          sync.RWMutex
	cachedSpec  *openapi3.T
}

// ResourceInfo describes a JSON:API resource served under /api/v1/{Name}.
type ResourceInfo struct {
	Name           string      // Resource type name (e.g., "pages")
	Model          interface{} // The model struct for schema extraction
	SupportsFind   bool        // GET /{type} and GET /{type}/{id}
	SupportsCreate bool        // POST /{type}
	SupportsUpdate bool        // PATCH /{type}/{id}
	SupportsDelete bool        // DELETE /{type}/{id}
}

// OperationInfo describes a plain-JSON endpoint.
type OperationInfo struct {
	Method   string
	Path     string
	ID       string
	Summary  string
	Tag      string
	Query    []string    // required query parameters
	Request  interface{} // body example value; nil for no body
	Response interface{} // success body example value
	Statuses []int       // success statuses; defaults to 200
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
		title:   "pagehost API",
		version: "1.0.0",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterResource adds a JSON:API resource.
func (g *Generator) RegisterResource(info ResourceInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resources = append(g.resources, info)
	g.cachedSpec = nil
}

// RegisterOperation adds a plain-JSON endpoint.
func (g *Generator) RegisterOperation(info OperationInfo) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.operations = append(g.operations, info)
	g.cachedSpec = nil
}

// Generate produces the complete OpenAPI 3.0 specification.
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
		Servers: make(openapi3.Servers, 0, len(g.servers)),
		Paths:   &openapi3.Paths{},
		Components: &openapi3.Components{
			Schemas: make(openapi3.Schemas),
		},
	}
	for _, url := range g.servers {
		spec.Servers = append(spec.Servers, &openapi3.Server{URL: url})
	}

	g.addCommonSchemas(spec)
	for _, res := range g.resources {
		g.addResourceToSpec(spec, res)
	}
	for _, op := range g.operations {
		g.addOperationToSpec(spec, op)
	}

	g.cachedSpec = spec
	return spec
}

// Handler returns an HTTP handler that serves the OpenAPI specification.
func (g *Generator) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		spec := g.Generate()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Access-Control-Allow-Origin", "*")

		if err := json.NewEncoder(w).Encode(spec); err != nil {
			http.Error(w, "Failed to encode OpenAPI spec", http.StatusInternalServerError)
		}
	}
}

// =============================================================================
// Schema Generation
// =============================================================================

func stringSchema() *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}}
}

func objectSchema(props openapi3.Schemas, required ...string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Value: &openapi3.Schema{
		Type:       &openapi3.Types{"object"},
		Properties: props,
		Required:   required,
	}}
}

func ref(name string) *openapi3.SchemaRef {
	return &openapi3.SchemaRef{Ref: "#/components/schemas/" + name}
}

// addCommonSchemas adds the two error envelopes: JSON:API errors for the
// resources and {"error":{code,message}} for the plain endpoints.
func (g *Generator) addCommonSchemas(spec *openapi3.T) {
	spec.Components.Schemas["JSONAPIError"] = objectSchema(openapi3.Schemas{
		"errors": &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type: &openapi3.Types{"array"},
			Items: objectSchema(openapi3.Schemas{
				"status": stringSchema(),
				"title":  stringSchema(),
				"detail": stringSchema(),
			}),
		}},
	})

	spec.Components.Schemas["Error"] = objectSchema(openapi3.Schemas{
		"error": objectSchema(openapi3.Schemas{
			"code": {Value: &openapi3.Schema{
				Type: &openapi3.Types{"string"},
				Enum: []interface{}{
					"INVALID_REQUEST", "UNAUTHORIZED", "FORBIDDEN", "NOT_FOUND",
					"DOMAIN_TAKEN", "VERCEL_ERROR", "KV_ERROR", "CONVEX_ERROR",
				},
			}},
			"message": stringSchema(),
		}, "code", "message"),
	}, "error")

	spec.Components.Schemas["PaginationMeta"] = objectSchema(openapi3.Schemas{
		"total":  {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
		"limit":  {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
		"offset": {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
	})
}

// addResourceToSpec adds paths and schemas for a JSON:API resource.
func (g *Generator) addResourceToSpec(spec *openapi3.T, res ResourceInfo) {
	basePath := "/api/v1/" + res.Name
	schemaName := capitalize(singularize(res.Name))

	spec.Components.Schemas[schemaName+"Attributes"] = g.extractSchema(res.Model)
	spec.Components.Schemas[schemaName] = objectSchema(openapi3.Schemas{
		"type": {Value: &openapi3.Schema{
			Type: &openapi3.Types{"string"},
			Enum: []interface{}{res.Name},
		}},
		"id":         stringSchema(),
		"attributes": ref(schemaName + "Attributes"),
	}, "type", "id")
	spec.Components.Schemas[schemaName+"Response"] = objectSchema(openapi3.Schemas{
		"data": ref(schemaName),
	})
	spec.Components.Schemas[schemaName+"ListResponse"] = objectSchema(openapi3.Schemas{
		"data": {Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: ref(schemaName),
		}},
		"meta": ref("PaginationMeta"),
	})

	collectionPath := &openapi3.PathItem{}
	if res.SupportsFind {
		collectionPath.Get = g.jsonAPIOperation("list"+capitalize(res.Name), "List "+res.Name, res,
			http.StatusOK, nil, ref(schemaName+"ListResponse"))
		collectionPath.Get.Parameters = openapi3.Parameters{
			{Value: openapi3.NewQueryParameter("page[size]").WithSchema(openapi3.NewIntegerSchema())},
			{Value: openapi3.NewQueryParameter("page[number]").WithSchema(openapi3.NewIntegerSchema())},
		}
	}
	if res.SupportsCreate {
		collectionPath.Post = g.jsonAPIOperation("create"+schemaName, "Create a "+singularize(res.Name), res,
			http.StatusCreated, ref(schemaName+"Response"), ref(schemaName+"Response"))
	}
	spec.Paths.Set(basePath, collectionPath)

	itemPath := &openapi3.PathItem{
		Parameters: openapi3.Parameters{
			{Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema())},
		},
	}
	if res.SupportsFind {
		itemPath.Get = g.jsonAPIOperation("get"+schemaName, "Get a "+singularize(res.Name), res,
			http.StatusOK, nil, ref(schemaName+"Response"))
	}
	if res.SupportsUpdate {
		itemPath.Patch = g.jsonAPIOperation("update"+schemaName, "Update a "+singularize(res.Name), res,
			http.StatusOK, ref(schemaName+"Response"), ref(schemaName+"Response"))
	}
	if res.SupportsDelete {
		itemPath.Delete = g.jsonAPIOperation("delete"+schemaName, "Delete a "+singularize(res.Name), res,
			http.StatusNoContent, nil, nil)
	}
	spec.Paths.Set(basePath+"/{id}", itemPath)
}

func (g *Generator) jsonAPIOperation(id, summary string, res ResourceInfo, status int, body, out *openapi3.SchemaRef) *openapi3.Operation {
	op := &openapi3.Operation{
		OperationID: id,
		Summary:     summary,
		Tags:        []string{capitalize(res.Name)},
		Responses:   &openapi3.Responses{},
	}
	if body != nil {
		op.RequestBody = &openapi3.RequestBodyRef{Value: &openapi3.RequestBody{
			Required: true,
			Content: openapi3.Content{
				"application/vnd.api+json": &openapi3.MediaType{Schema: body},
			},
		}}
	}

	success := openapi3.NewResponse().WithDescription(http.StatusText(status))
	if out != nil {
		success.Content = openapi3.Content{
			"application/vnd.api+json": &openapi3.MediaType{Schema: out},
		}
	}
	op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: success})
	op.Responses.Set("default", &openapi3.ResponseRef{Value: openapi3.NewResponse().
		WithDescription("Error").
		WithContent(openapi3.Content{
			"application/vnd.api+json": &openapi3.MediaType{Schema: ref("JSONAPIError")},
		})})
	return op
}

// addOperationToSpec adds a plain-JSON endpoint.
func (g *Generator) addOperationToSpec(spec *openapi3.T, info OperationInfo) {
	op := &openapi3.Operation{
		OperationID: info.ID,
		Summary:     info.Summary,
		Tags:        []string{info.Tag},
		Responses:   &openapi3.Responses{},
	}

	for _, q := range info.Query {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter(q).WithRequired(true).WithSchema(openapi3.NewStringSchema()),
		})
	}
	if strings.Contains(info.Path, "{id}") {
		op.Parameters = append(op.Parameters, &openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()),
		})
	}

	if info.Request != nil {
		op.RequestBody = &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchemaRef(g.schemaFor(reflect.TypeOf(info.Request)))}
	}

	statuses := info.Statuses
	if len(statuses) == 0 {
		statuses = []int{http.StatusOK}
	}
	for _, status := range statuses {
		resp := openapi3.NewResponse().WithDescription(http.StatusText(status))
		if info.Response != nil {
			resp = resp.WithJSONSchemaRef(g.schemaFor(reflect.TypeOf(info.Response)))
		}
		op.Responses.Set(strconv.Itoa(status), &openapi3.ResponseRef{Value: resp})
	}
	op.Responses.Set("default", &openapi3.ResponseRef{Value: openapi3.NewResponse().
		WithDescription("Error").
		WithJSONSchemaRef(ref("Error"))})

	item := spec.Paths.Value(info.Path)
	if item == nil {
		item = &openapi3.PathItem{}
		spec.Paths.Set(info.Path, item)
	}
	item.SetOperation(strings.ToUpper(info.Method), op)
}

// extractSchema extracts an OpenAPI schema from a Go struct.
func (g *Generator) extractSchema(model interface{}) *openapi3.SchemaRef {
	return g.schemaFor(reflect.TypeOf(model))
}

func (g *Generator) structSchema(t reflect.Type) *openapi3.SchemaRef {
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
		name, _, _ := strings.Cut(jsonTag, ",")

		// Untagged embedded structs are flattened, as encoding/json does.
		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Ptr {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				for k, v := range g.structSchema(ft).Value.Properties {
					schema.Properties[k] = v
				}
				continue
			}
		}

		if name == "" {
			name = field.Name
		}
		if prop := g.schemaFor(field.Type); prop != nil {
			schema.Properties[name] = prop
		}
	}

	return &openapi3.SchemaRef{Value: schema}
}

var (
	timeType       = reflect.TypeOf(time.Time{})
	rawMessageType = reflect.TypeOf(json.RawMessage{})
)

// schemaFor converts a Go type to an OpenAPI schema.
func (g *Generator) schemaFor(t reflect.Type) *openapi3.SchemaRef {
	switch t {
	case timeType:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "date-time"}}
	case rawMessageType:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}

	switch t.Kind() {
	case reflect.String:
		return stringSchema()

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}}

	case reflect.Int64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}}

	case reflect.Float32, reflect.Float64:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}}

	case reflect.Bool:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}}

	case reflect.Slice, reflect.Array:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:  &openapi3.Types{"array"},
			Items: g.schemaFor(t.Elem()),
		}}

	case reflect.Map:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{
			Type:                 &openapi3.Types{"object"},
			AdditionalProperties: openapi3.AdditionalProperties{Schema: g.schemaFor(t.Elem())},
		}}

	case reflect.Ptr:
		schema := g.schemaFor(t.Elem())
		if schema != nil && schema.Value != nil {
			schema.Value.Nullable = true
		}
		return schema

	case reflect.Struct:
		return g.structSchema(t)

	default:
		return &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}}
	}
}

// =============================================================================
// Helpers
// =============================================================================

// Paths returns the documented paths in sorted order.
func (g *Generator) Paths() []string {
	spec := g.Generate()
	paths := make([]string, 0, spec.Paths.Len())
	for p := range spec.Paths.Map() {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// capitalize returns the string with the first letter capitalized.
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// singularize performs basic singularization (removes trailing 's').
func singularize(s string) string {
	if strings.HasSuffix(s, "ies") {
		return s[:len(s)-3] + "y"
	}
	if strings.HasSuffix(s, "s") {
		return s[:len(s)-1]
	}
	return s
}
