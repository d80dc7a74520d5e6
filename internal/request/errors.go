package request

import (
	"fmt"
	"net/http"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// errorNames maps the error name reported by the server to its kind.
var errorNames = map[string]*model.Error{
	"InsufficientCredentials":  model.ErrInsufficientCredentials,
	"InvalidCredentials":       model.ErrInvalidCredentials,
	"EntityNotFound":           model.ErrNotFound,
	"CollectionNotFound":       model.ErrNotFound,
	"AppNotFound":              model.ErrNotFound,
	"UserNotFound":             model.ErrNotFound,
	"BlobNotFound":             model.ErrNotFound,
	"InvalidQuerySyntax":       model.ErrInvalidQuerySyntax,
	"JSONParseError":           model.ErrJSONParse,
	"MissingQuery":             model.ErrMissingQuery,
	"MissingRequestHeader":     model.ErrMissingRequestHeader,
	"MissingRequestParameter":  model.ErrMissingRequestParameter,
	"ParameterValueOutOfRange": model.ErrParameterValueOutOfRange,
	"FeatureUnavailable":       model.ErrFeatureUnavailable,
	"IncompleteRequestBody":    model.ErrIncompleteRequestBody,
	"KinveyInternalErrorRetry": model.ErrServer,
	"KinveyInternalErrorStop":  model.ErrServer,
	"invalid_grant":            model.ErrMobileIdentityConnect,
	"invalid_client":           model.ErrMobileIdentityConnect,
	"unauthorized_client":      model.ErrMobileIdentityConnect,
	"access_denied":            model.ErrMobileIdentityConnect,
}

func init() {
	// The kind names themselves are accepted too.
	for _, kind := range []*model.Error{
		model.ErrKinvey, model.ErrNotFound, model.ErrInsufficientCredentials,
		model.ErrInvalidCredentials, model.ErrServer, model.ErrInvalidQuerySyntax,
		model.ErrJSONParse, model.ErrMissingQuery, model.ErrMissingRequestHeader,
		model.ErrMissingRequestParameter, model.ErrParameterValueOutOfRange,
		model.ErrFeatureUnavailable, model.ErrIncompleteRequestBody,
		model.ErrMobileIdentityConnect,
	} {
		errorNames[kind.Name] = kind
	}
}

// Classify turns an unsuccessful status and decoded body into an error. The
// body's "name" (or "error") field is consulted first; unknown names fall
// back to the status table: 401, 404, 500, anything else.
func Classify(status int, data interface{}) *model.Error {
	body, _ := data.(map[string]interface{})

	kind := kindByName(body)
	if kind == nil {
		switch status {
		case http.StatusUnauthorized:
			kind = model.ErrInsufficientCredentials
		case http.StatusNotFound:
			kind = model.ErrNotFound
		case http.StatusInternalServerError:
			kind = model.ErrServer
		default:
			kind = model.ErrKinvey
		}
	}

	e := &model.Error{Name: kind.Name, StatusCode: status}
	if body != nil {
		e.Message = firstString(body, "description", "message")
		e.Debug = debugString(body["debug"])
	} else if s, ok := data.(string); ok {
		e.Message = s
	}
	if e.Message == "" {
		e.Message = fmt.Sprintf("request failed with status %d", status)
	}
	return e
}

func kindByName(body map[string]interface{}) *model.Error {
	for _, field := range []string{"name", "error"} {
		if name, ok := body[field].(string); ok {
			if kind, ok := errorNames[name]; ok {
				return kind
			}
		}
	}
	return nil
}

func firstString(body map[string]interface{}, fields ...string) string {
	for _, f := range fields {
		if s, ok := body[f].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func debugString(v interface{}) string {
	switch d := v.(type) {
	case nil:
		return ""
	case string:
		return d
	}
	return fmt.Sprint(v)
}
