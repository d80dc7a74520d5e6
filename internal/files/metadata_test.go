package files

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/kinsync/pkg/model"
)

func TestMetadata_Validate(t *testing.T) {
	md := Metadata{Size: 10}
	require.NoError(t, md.Validate())
	assert.Equal(t, DefaultMimeType, md.MimeType)

	md = Metadata{Size: 0}
	err := md.Validate()
	assert.ErrorIs(t, err, model.ErrKinvey)
	assert.ErrorContains(t, err, "size of 0")

	md = Metadata{Size: -1}
	assert.ErrorIs(t, md.Validate(), model.ErrKinvey)
}

func TestMetadata_Document(t *testing.T) {
	md := Metadata{ID: "f1", Filename: "a.txt", MimeType: "text/plain", Size: 3, Public: true, Fields: map[string]interface{}{"size": "ignored", "owner": "u1"}}
	doc := md.Document()
	assert.Equal(t, model.Document{
		"_id":       "f1",
		"_filename": "a.txt",
		"mimeType":  "text/plain",
		"size":      int64(3),
		"_public":   true,
		"owner":     "u1",
	}, doc)
}
