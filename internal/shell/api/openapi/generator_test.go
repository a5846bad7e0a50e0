package openapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAttrs struct {
	ID        string          `json:"-"`
	Slug      string          `json:"slug"`
	Domain    *string         `json:"custom_domain"`
	Styling   json.RawMessage `json:"styling"`
	CreatedAt time.Time       `json:"created_at"`
	hidden    string
}

type testInner struct {
	Domain   string `json:"domain"`
	Verified bool   `json:"verified"`
}

type testOuter struct {
	OK bool `json:"ok"`
	testInner
}

func TestGenerate_Resource(t *testing.T) {
	g := NewGenerator(WithTitle("test"), WithServer("http://localhost"))
	g.RegisterResource(ResourceInfo{
		Name:           "pages",
		Model:          testAttrs{},
		SupportsFind:   true,
		SupportsCreate: true,
		SupportsDelete: true,
	})

	spec := g.Generate()
	assert.Equal(t, "test", spec.Info.Title)
	require.Len(t, spec.Servers, 1)

	attrs := spec.Components.Schemas["PageAttributes"]
	require.NotNil(t, attrs)
	props := attrs.Value.Properties
	assert.Contains(t, props, "slug")
	assert.Contains(t, props, "custom_domain")
	assert.NotContains(t, props, "ID")
	assert.NotContains(t, props, "hidden")
	assert.True(t, props["custom_domain"].Value.Nullable)
	assert.Equal(t, "date-time", props["created_at"].Value.Format)
	assert.True(t, props["styling"].Value.Type.Is("object"))

	item := spec.Paths.Value("/api/v1/pages/{id}")
	require.NotNil(t, item)
	assert.NotNil(t, item.Get)
	assert.NotNil(t, item.Delete)
	assert.Nil(t, item.Patch)
	assert.NotNil(t, item.Delete.Responses.Value("204"))

	collection := spec.Paths.Value("/api/v1/pages")
	require.NotNil(t, collection)
	assert.NotNil(t, collection.Post.Responses.Value("201"))
}

func TestGenerate_Operation(t *testing.T) {
	g := NewGenerator()
	g.RegisterOperation(OperationInfo{
		Method: "POST", Path: "/api/domain/add", ID: "addDomain", Tag: "Domains",
		Request: map[string]string{}, Response: testOuter{},
		Statuses: []int{http.StatusCreated, http.StatusAccepted},
	})
	g.RegisterOperation(OperationInfo{
		Method: "GET", Path: "/api/domain/verify", ID: "verifyDomain", Tag: "Domains",
		Query: []string{"domain"}, Response: []testInner{},
	})

	spec := g.Generate()

	add := spec.Paths.Value("/api/domain/add")
	require.NotNil(t, add)
	require.NotNil(t, add.Post)
	require.NotNil(t, add.Post.RequestBody)
	for _, code := range []string{"201", "202", "default"} {
		assert.NotNil(t, add.Post.Responses.Value(code), code)
	}

	created := add.Post.Responses.Value("201").Value.Content.Get("application/json")
	require.NotNil(t, created)
	props := created.Schema.Value.Properties
	assert.Contains(t, props, "ok")
	assert.Contains(t, props, "domain", "embedded fields are flattened")
	assert.Contains(t, props, "verified")

	verify := spec.Paths.Value("/api/domain/verify")
	require.NotNil(t, verify.Get)
	require.Len(t, verify.Get.Parameters, 1)
	assert.Equal(t, "domain", verify.Get.Parameters[0].Value.Name)
	assert.True(t, verify.Get.Parameters[0].Value.Required)

	ok := verify.Get.Responses.Value("200").Value.Content.Get("application/json")
	require.NotNil(t, ok)
	assert.True(t, ok.Schema.Value.Type.Is("array"))
}

func TestGenerate_Cached(t *testing.T) {
	g := NewGenerator()
	first := g.Generate()
	assert.Same(t, first, g.Generate())

	g.RegisterOperation(OperationInfo{Method: "GET", Path: "/x", ID: "x", Tag: "X"})
	assert.NotSame(t, first, g.Generate())
	assert.Equal(t, []string{"/x"}, g.Paths())
}

func TestHandler(t *testing.T) {
	g := NewGenerator(WithVersion("2.0.0"))
	rec := httptest.NewRecorder()
	g.Handler()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.0.3", doc["openapi"])
	info := doc["info"].(map[string]interface{})
	assert.Equal(t, "2.0.0", info["version"])
}

func TestSingularize(t *testing.T) {
	assert.Equal(t, "page", singularize("pages"))
	assert.Equal(t, "entry", singularize("entries"))
	assert.Equal(t, "Section", capitalize("section"))
	assert.Equal(t, "", capitalize(""))
}
