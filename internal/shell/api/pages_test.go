package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// jsonAPIDoc is the subset of a JSON:API document the tests read.
type jsonAPIDoc struct {
	Data   json.RawMessage          `json:"data"`
	Meta   map[string]interface{}   `json:"meta"`
	Errors []map[string]interface{} `json:"errors"`
}

type jsonAPIResource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

func readOne(t *testing.T, body []byte) jsonAPIResource {
	t.Helper()
	var doc jsonAPIDoc
	require.NoError(t, json.Unmarshal(body, &doc), string(body))
	var res jsonAPIResource
	require.NoError(t, json.Unmarshal(doc.Data, &res), string(body))
	return res
}

func readMany(t *testing.T, body []byte) []jsonAPIResource {
	t.Helper()
	var doc jsonAPIDoc
	require.NoError(t, json.Unmarshal(body, &doc), string(body))
	var res []jsonAPIResource
	require.NoError(t, json.Unmarshal(doc.Data, &res), string(body))
	return res
}

func pageBody(slug, title string) string {
	return fmt.Sprintf(`{"data":{"type":"pages","attributes":{"slug":%q,"title":%q}}}`, slug, title)
}

// =============================================================================
// Pages
// =============================================================================

func TestPages_RequireSession(t *testing.T) {
	f := setupAPI(t)

	rec := f.request(t, http.MethodGet, "/api/v1/pages", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.request(t, http.MethodPost, "/api/v1/pages", pageBody("summer", "Summer"), "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPages_CreateAndList(t *testing.T) {
	f := setupAPI(t)

	rec := f.request(t, http.MethodPost, "/api/v1/pages", pageBody("summer", "Summer Sale"), "user_1")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := readOne(t, rec.Body.Bytes())
	assert.Equal(t, "pages", created.Type)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "summer", created.Attributes["slug"])
	assert.Equal(t, "user_1", created.Attributes["user_id"])

	t.Run("duplicate slug", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/pages", pageBody("summer", "Other"), "user_2")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("reserved slug", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/pages", pageBody("api", "API"), "user_1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("owner lists", func(t *testing.T) {
		f.request(t, http.MethodPost, "/api/v1/pages", pageBody("winter", "Winter"), "user_1")
		rec := f.request(t, http.MethodGet, "/api/v1/pages", "", "user_1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, readMany(t, rec.Body.Bytes()), 2)

		rec = f.request(t, http.MethodGet, "/api/v1/pages?filter[q]=wint", "", "user_1")
		require.Equal(t, http.StatusOK, rec.Code)
		pages := readMany(t, rec.Body.Bytes())
		require.Len(t, pages, 1)
		assert.Equal(t, "winter", pages[0].Attributes["slug"])
	})

	t.Run("other user sees nothing", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/pages", "", "user_2")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, readMany(t, rec.Body.Bytes()))

		rec = f.request(t, http.MethodGet, "/api/v1/pages/"+created.ID, "", "user_2")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPages_Update(t *testing.T) {
	f := setupAPI(t)
	page := f.createPage(t, "user_1", "summer")
	f.createPage(t, "user_1", "winter")

	patch := func(attrs, userID string) int {
		body := fmt.Sprintf(`{"data":{"type":"pages","id":%q,"attributes":%s}}`, page.ID, attrs)
		return f.request(t, http.MethodPatch, "/api/v1/pages/"+page.ID, body, userID).Code
	}

	assert.Equal(t, http.StatusOK, patch(`{"title":"Renamed"}`, "user_1"))
	got, err := f.store.GetPage(context.Background(), page.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.Equal(t, "summer", got.Slug)

	assert.Equal(t, http.StatusConflict, patch(`{"slug":"winter"}`, "user_1"))
	assert.Equal(t, http.StatusBadRequest, patch(`{"custom_domain":"not a domain"}`, "user_1"))
	assert.Equal(t, http.StatusNotFound, patch(`{"title":"Hijack"}`, "user_2"))

	assert.Equal(t, http.StatusOK, patch(`{"custom_domain":"Shop.Example.com"}`, "user_1"))
	got, err = f.store.GetPage(context.Background(), page.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CustomDomain)
	assert.Equal(t, "shop.example.com", *got.CustomDomain)

	assert.Equal(t, http.StatusOK, patch(`{"custom_domain":null}`, "user_1"))
	got, err = f.store.GetPage(context.Background(), page.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CustomDomain)
}

func TestPages_DeleteReleasesDomain(t *testing.T) {
	f := setupAPI(t)
	page := f.createPage(t, "user_1", "summer")

	rec := f.request(t, http.MethodPost, "/api/domain/add", `{"slug":"summer","domain":"example.com"}`, "user_1")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, f.mr.Exists("domain:example.com"))

	rec = f.request(t, http.MethodDelete, "/api/v1/pages/"+page.ID, "", "user_2")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.request(t, http.MethodDelete, "/api/v1/pages/"+page.ID, "", "user_1")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	_, err := f.store.GetPage(context.Background(), page.ID)
	assert.Error(t, err)
	assert.False(t, f.mr.Exists("domain:example.com"))

	rec = f.requestHost(t, "example.com", http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// Sections
// =============================================================================

func sectionBody(pageID, sectionType string) string {
	return fmt.Sprintf(`{"data":{"type":"sections","attributes":{"page_id":%q,"section_type":%q,"content":{"headline":"Hi"}}}}`,
		pageID, sectionType)
}

func TestSections_CreateAppendsAndReorders(t *testing.T) {
	f := setupAPI(t)
	page := f.createPage(t, "user_1", "summer")

	var ids []string
	for i, typ := range []string{"hero", "steps", "faq"} {
		rec := f.request(t, http.MethodPost, "/api/v1/sections", sectionBody(page.ID, typ), "user_1")
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		s := readOne(t, rec.Body.Bytes())
		assert.EqualValues(t, i+1, s.Attributes["order_index"])
		ids = append(ids, s.ID)
	}

	t.Run("other user cannot add", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/sections", sectionBody(page.ID, "hero"), "user_2")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("page_id required", func(t *testing.T) {
		rec := f.request(t, http.MethodPost, "/api/v1/sections", sectionBody("", "hero"), "user_1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("list by page", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/api/v1/sections?filter[page_id]="+page.ID, "", "user_1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, readMany(t, rec.Body.Bytes()), 3)

		rec = f.request(t, http.MethodGet, "/api/v1/sections", "", "user_1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reorder", func(t *testing.T) {
		order, err := json.Marshal([]domain.SectionOrder{
			{SectionID: ids[2], OrderIndex: 1},
			{SectionID: ids[0], OrderIndex: 2},
			{SectionID: ids[1], OrderIndex: 3},
		})
		require.NoError(t, err)

		rec := f.request(t, http.MethodPost, "/api/v1/pages/"+page.ID+"/sections/reorder", string(order), "user_1")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		sections := readMany(t, rec.Body.Bytes())
		require.Len(t, sections, 3)
		assert.Equal(t, ids[2], sections[0].ID)
		assert.Equal(t, "faq", sections[0].Attributes["section_type"])

		rec = f.request(t, http.MethodPost, "/api/v1/pages/"+page.ID+"/sections/reorder", string(order), "user_2")
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = f.request(t, http.MethodPost, "/api/v1/pages/"+page.ID+"/sections/reorder", `{"x":1}`, "user_1")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := f.request(t, http.MethodDelete, "/api/v1/sections/"+ids[0], "", "user_1")
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = f.request(t, http.MethodGet, "/api/v1/sections/"+ids[0], "", "user_1")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("public payload lists sections", func(t *testing.T) {
		rec := f.request(t, http.MethodGet, "/summer", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode(t, rec)["sections"], 2)
	})
}
