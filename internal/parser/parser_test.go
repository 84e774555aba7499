package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salacoste/openapi-mcp-swagger-sub001/internal/apperrors"
	"github.com/salacoste/openapi-mcp-swagger-sub001/pkg/types"
)

const sampleSpec = `{
  "openapi": "3.0.3",
  "info": {"title": "Performance API", "version": "2.0", "description": "Advertising performance endpoints"},
  "servers": [{"url": "https://api.performance.example/"}],
  "security": [{"api_key": []}],
  "tags": [
    {"name": "Campaign", "description": "Campaign management", "x-displayName": "Кампании"},
    {"name": "Statistics", "description": "Reports"}
  ],
  "x-tagGroups": [
    {"name": "Methods", "tags": ["Campaign", "Statistics"]}
  ],
  "paths": {
    "/api/client/campaign": {
      "parameters": [
        {"name": "Client-Id", "in": "header", "required": true, "schema": {"type": "string"}}
      ],
      "get": {
        "summary": "List campaigns",
        "operationId": "ListCampaigns",
        "tags": ["Campaign"],
        "parameters": [
          {"name": "page", "in": "query", "schema": {"type": "integer"}}
        ],
        "responses": {
          "200": {"description": "OK", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/CampaignList"}}}}
        }
      },
      "post": {
        "summary": "Create campaign",
        "operationId": "CreateCampaign",
        "tags": ["Campaign"],
        "requestBody": {
          "required": true,
          "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Campaign"}}}
        },
        "responses": {"200": {"description": "OK"}}
      },
      "trace": {"summary": "not supported"}
    }
  },
  "components": {
    "schemas": {
      "Campaign": {"type": "object", "properties": {"id": {"type": "integer"}, "list": {"$ref": "#/components/schemas/CampaignList"}}},
      "CampaignList": {"type": "array", "items": {"$ref": "#/components/schemas/Campaign"}}
    },
    "securitySchemes": {
      "api_key": {"type": "apiKey", "in": "header", "name": "Api-Key"}
    }
  }
}`

func collect(t *testing.T, src string) ([]interface{}, *Parser) {
	t.Helper()
	p := New(strings.NewReader(src))
	var records []interface{}
	for p.Next() {
		records = append(records, p.Record())
	}
	require.NoError(t, p.Err())
	return records, p
}

func TestParser_EmitsRecordsInDocumentOrder(t *testing.T) {
	records, p := collect(t, sampleSpec)

	var kinds []string
	for _, rec := range records {
		switch rec.(type) {
		case *types.TagDefinition:
			kinds = append(kinds, "tag")
		case *types.TagGroupDefinition:
			kinds = append(kinds, "tagGroup")
		case *types.Endpoint:
			kinds = append(kinds, "endpoint")
		case *types.Schema:
			kinds = append(kinds, "schema")
		case *types.SecurityScheme:
			kinds = append(kinds, "securityScheme")
		case *types.APIInfo:
			kinds = append(kinds, "info")
		default:
			t.Fatalf("unexpected record type %T", rec)
		}
	}
	assert.Equal(t, []string{
		"tag", "tag", "tagGroup",
		"endpoint", "endpoint",
		"schema", "schema", "securityScheme",
		"info",
	}, kinds)

	// the unsupported trace method produced the only warning
	require.Len(t, p.Warnings(), 1)
	assert.Contains(t, p.Warnings()[0].Message, `"trace"`)
}

func TestParser_TagAndGroupRecords(t *testing.T) {
	records, _ := collect(t, sampleSpec)

	tag, ok := records[0].(*types.TagDefinition)
	require.True(t, ok)
	assert.Equal(t, "Campaign", tag.Name)
	assert.Equal(t, "Campaign management", tag.Description)
	assert.Equal(t, "Кампании", tag.DisplayName)

	group, ok := records[2].(*types.TagGroupDefinition)
	require.True(t, ok)
	assert.Equal(t, "Methods", group.Name)
	assert.Equal(t, []string{"Campaign", "Statistics"}, group.Tags)
}

func TestParser_EndpointRecords(t *testing.T) {
	records, _ := collect(t, sampleSpec)

	get, ok := records[3].(*types.Endpoint)
	require.True(t, ok)
	assert.Equal(t, "/api/client/campaign", get.Path)
	assert.Equal(t, "GET", get.Method)
	assert.Equal(t, "ListCampaigns", get.OperationID)
	assert.Equal(t, []string{"Campaign"}, get.Tags)

	// operation parameters first, then the inherited path-level one
	require.Len(t, get.Parameters, 2)
	assert.Equal(t, "page", get.Parameters[0].Name)
	assert.Equal(t, "query", get.Parameters[0].In)
	assert.Equal(t, "Client-Id", get.Parameters[1].Name)
	assert.Equal(t, "header", get.Parameters[1].In)
	assert.True(t, get.Parameters[1].Required)

	resp, ok := get.Responses["200"]
	require.True(t, ok)
	assert.Equal(t, "CampaignList", resp.SchemaRef)
	assert.Equal(t, "application/json", resp.ContentType)

	post, ok := records[4].(*types.Endpoint)
	require.True(t, ok)
	assert.Equal(t, "POST", post.Method)
	require.NotNil(t, post.RequestBody)
	assert.True(t, post.RequestBody.Required)
	assert.Equal(t, "Campaign", post.RequestBody.SchemaRef)
	require.Len(t, post.Parameters, 1)
	assert.Equal(t, "Client-Id", post.Parameters[0].Name)
}

func TestParser_SchemaAndSecurityRecords(t *testing.T) {
	records, _ := collect(t, sampleSpec)

	campaign, ok := records[5].(*types.Schema)
	require.True(t, ok)
	assert.Equal(t, "Campaign", campaign.Name)
	assert.Equal(t, []string{"CampaignList"}, campaign.References)
	assert.Contains(t, string(campaign.Body), `"properties"`)

	list, ok := records[6].(*types.Schema)
	require.True(t, ok)
	assert.Equal(t, []string{"Campaign"}, list.References)

	scheme, ok := records[7].(*types.SecurityScheme)
	require.True(t, ok)
	assert.Equal(t, "api_key", scheme.Name)
	assert.Equal(t, "apiKey", scheme.Type)
	assert.Equal(t, "header", scheme.In)
	assert.Equal(t, "Api-Key", scheme.ParamName)
}

func TestParser_APIInfoEmittedLast(t *testing.T) {
	records, _ := collect(t, sampleSpec)

	info, ok := records[len(records)-1].(*types.APIInfo)
	require.True(t, ok)
	assert.Equal(t, "Performance API", info.Title)
	assert.Equal(t, "2.0", info.Version)
	assert.Equal(t, []string{"https://api.performance.example/"}, info.Servers)
	require.Len(t, info.Security, 1)
	assert.Contains(t, info.Security[0], "api_key")
}

func TestParser_OperationParameterOverridesPathLevel(t *testing.T) {
	src := `{
	  "paths": {
	    "/items": {
	      "parameters": [{"name": "Client-Id", "in": "header", "description": "inherited"}],
	      "get": {
	        "parameters": [{"name": "Client-Id", "in": "header", "description": "per-operation", "required": true}],
	        "responses": {"200": {"description": "OK"}}
	      }
	    }
	  }
	}`
	records, _ := collect(t, src)

	ep, ok := records[0].(*types.Endpoint)
	require.True(t, ok)
	require.Len(t, ep.Parameters, 1)
	assert.Equal(t, "per-operation", ep.Parameters[0].Description)
}

func TestParser_DuplicateOperationLaterWins(t *testing.T) {
	src := `{
	  "paths": {
	    "/dup": {
	      "get": {"summary": "first", "responses": {"200": {"description": "OK"}}},
	      "get": {"summary": "second", "responses": {"200": {"description": "OK"}}}
	    }
	  }
	}`
	records, p := collect(t, src)

	var endpoints []*types.Endpoint
	for _, rec := range records {
		if ep, ok := rec.(*types.Endpoint); ok {
			endpoints = append(endpoints, ep)
		}
	}
	require.Len(t, endpoints, 1)
	assert.Equal(t, "second", endpoints[0].Summary)

	require.NotEmpty(t, p.Warnings())
	assert.Contains(t, p.Warnings()[0].Message, "duplicate operation GET /dup")
}

func TestParser_UnknownTopLevelKeysSkipped(t *testing.T) {
	src := `{
	  "openapi": "3.1.0",
	  "x-vendor": {"deep": [{"nested": true}]},
	  "info": {"title": "T", "version": "1"},
	  "paths": {}
	}`
	records, p := collect(t, src)

	require.Len(t, records, 1)
	info, ok := records[0].(*types.APIInfo)
	require.True(t, ok)
	assert.Equal(t, "T", info.Title)
	assert.Empty(t, p.Warnings())
}

func TestParser_ZeroEndpoints(t *testing.T) {
	records, _ := collect(t, `{"info": {"title": "Empty", "version": "0.1"}, "paths": {}}`)
	require.Len(t, records, 1)
	_, ok := records[0].(*types.APIInfo)
	assert.True(t, ok)
}

func TestParser_MalformedJSONIsFatalWithOffset(t *testing.T) {
	p := New(strings.NewReader(`{"info": {"title": "Broken"`))
	for p.Next() {
	}

	err := p.Err()
	require.Error(t, err)
	assert.Equal(t, apperrors.KindInvalidSpecification, apperrors.KindOf(err))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Positive(t, appErr.Offset)
}

func TestParser_NonObjectDocumentIsFatal(t *testing.T) {
	p := New(strings.NewReader(`[1, 2, 3]`))
	assert.False(t, p.Next())
	assert.Error(t, p.Err())
}

func TestParser_NonObjectPathItemWarns(t *testing.T) {
	src := `{"paths": {"/broken": "nope", "/ok": {"get": {"responses": {"200": {"description": "OK"}}}}}}`
	records, p := collect(t, src)

	var endpoints []*types.Endpoint
	for _, rec := range records {
		if ep, ok := rec.(*types.Endpoint); ok {
			endpoints = append(endpoints, ep)
		}
	}
	require.Len(t, endpoints, 1)
	assert.Equal(t, "/ok", endpoints[0].Path)
	require.NotEmpty(t, p.Warnings())
	assert.Contains(t, p.Warnings()[0].Message, "/broken")
}

func TestCollectRefs(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected []string
	}{
		{
			"nested and deduplicated",
			`{"properties": {"a": {"$ref": "#/components/schemas/A"}, "b": {"items": {"$ref": "#/components/schemas/B"}}, "c": {"$ref": "#/components/schemas/A"}}}`,
			[]string{"A", "B"},
		},
		{
			"allOf composition",
			`{"allOf": [{"$ref": "#/components/schemas/Base"}, {"properties": {"x": {"type": "string"}}}]}`,
			[]string{"Base"},
		},
		{
			"self reference",
			`{"properties": {"next": {"$ref": "#/components/schemas/Node"}}}`,
			[]string{"Node"},
		},
		{
			"external refs ignored",
			`{"$ref": "other.json#/components/schemas/Foreign"}`,
			nil,
		},
		{
			"no refs",
			`{"type": "string", "enum": ["a", "b"]}`,
			nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CollectRefs([]byte(tt.body)))
		})
	}
}

func TestRefName(t *testing.T) {
	assert.Equal(t, "Campaign", RefName("#/components/schemas/Campaign"))
	assert.Equal(t, "", RefName("#/components/responses/Err"))
	assert.Equal(t, "", RefName("https://example.com/schema.json#/components/schemas/X"))
}
