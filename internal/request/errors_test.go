package request

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syntrixbase/kinsync/pkg/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		data   interface{}
		want   *model.Error
	}{
		{"401 fallback", 401, nil, model.ErrInsufficientCredentials},
		{"404 fallback", 404, nil, model.ErrNotFound},
		{"500 fallback", 500, nil, model.ErrServer},
		{"other status", 409, nil, model.ErrKinvey},
		{"308 is generic", 308, nil, model.ErrKinvey},
		{"name wins over status", 400, map[string]interface{}{"name": "InvalidQuerySyntax"}, model.ErrInvalidQuerySyntax},
		{"error field", 400, map[string]interface{}{"error": "JSONParseError"}, model.ErrJSONParse},
		{"missing query", 400, map[string]interface{}{"error": "MissingQuery"}, model.ErrMissingQuery},
		{"missing header", 400, map[string]interface{}{"error": "MissingRequestHeader"}, model.ErrMissingRequestHeader},
		{"missing parameter", 400, map[string]interface{}{"error": "MissingRequestParameter"}, model.ErrMissingRequestParameter},
		{"out of range", 400, map[string]interface{}{"error": "ParameterValueOutOfRange"}, model.ErrParameterValueOutOfRange},
		{"feature unavailable", 400, map[string]interface{}{"error": "FeatureUnavailable"}, model.ErrFeatureUnavailable},
		{"incomplete body", 400, map[string]interface{}{"error": "IncompleteRequestBody"}, model.ErrIncompleteRequestBody},
		{"invalid credentials", 401, map[string]interface{}{"error": "InvalidCredentials"}, model.ErrInvalidCredentials},
		{"entity not found", 404, map[string]interface{}{"error": "EntityNotFound"}, model.ErrNotFound},
		{"blob not found", 404, map[string]interface{}{"error": "BlobNotFound"}, model.ErrNotFound},
		{"internal retry", 500, map[string]interface{}{"error": "KinveyInternalErrorRetry"}, model.ErrServer},
		{"mic grant", 400, map[string]interface{}{"error": "invalid_grant"}, model.ErrMobileIdentityConnect},
		{"kind name", 400, map[string]interface{}{"name": "FeatureUnavailableError"}, model.ErrFeatureUnavailable},
		{"unknown name falls back", 404, map[string]interface{}{"error": "Teapot"}, model.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.status, tt.data)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestClassify_Details(t *testing.T) {
	err := Classify(400, map[string]interface{}{
		"error":       "InvalidQuerySyntax",
		"description": "The query is not valid",
		"debug":       map[string]interface{}{"at": "sort"},
	})
	assert.Equal(t, "The query is not valid", err.Message)
	assert.Equal(t, "map[at:sort]", err.Debug)
	assert.Equal(t, "InvalidQuerySyntaxError: The query is not valid", err.Error())

	plain := Classify(502, "Bad Gateway")
	assert.Equal(t, "Bad Gateway", plain.Message)

	empty := Classify(503, nil)
	assert.Equal(t, "request failed with status 503", empty.Message)
}
