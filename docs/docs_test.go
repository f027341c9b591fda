package docs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwaggerDocListsEveryRoute(t *testing.T) {
	var doc struct {
		BasePath string                                `json:"basePath"`
		Paths    map[string]map[string]json.RawMessage `json:"paths"`
	}
	require.NoError(t, json.Unmarshal([]byte(SwaggerInfo.ReadDoc()), &doc))
	assert.Equal(t, "/api", doc.BasePath)

	routes := map[string]string{
		"/me":                          "get",
		"/auth/logout":                 "post",
		"/feature-flags":               "get",
		"/ws/ticket":                   "post",
		"/ws/chat":                     "get",
		"/conversations":               "post",
		"/conversations/{id}":          "get",
		"/conversations/{id}/messages": "get",
		"/conversations/{id}/read":     "post",
		"/notifications":               "get",
		"/notifications/read-all":      "put",
		"/notifications/{id}/read":     "put",
		"/reports/{id}/share":          "post",
	}
	for path, method := range routes {
		ops, ok := doc.Paths[path]
		if assert.True(t, ok, path) {
			assert.Contains(t, ops, method, path)
		}
	}
	assert.Contains(t, doc.Paths["/conversations"], "get")
	assert.Contains(t, doc.Paths["/conversations/{id}/messages"], "post")
}
