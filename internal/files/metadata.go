// Package files stores binary payloads through the blob API: metadata is
// saved first, then the bytes go to the returned upload URL with a
// resumable, range-based protocol.
package files

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/syntrixbase/kinsync/pkg/model"
)

// DefaultMimeType is used when Metadata.MimeType is empty.
const DefaultMimeType = "application/octet-stream"

// Server-assigned fields stripped from the final file document.
const (
	fieldUploadURL       = "_uploadURL"
	fieldRequiredHeaders = "_requiredHeaders"
	fieldExpiresAt       = "_expiresAt"
	fieldData            = "_data"
)

var validate = validator.New()

// Metadata describes a file. Fields carries custom properties stored with
// the blob metadata.
type Metadata struct {
	ID       string                 `validate:"omitempty,max=128"`
	Filename string                 `validate:"max=1024"`
	MimeType string                 `validate:"required"`
	Size     int64                  `validate:"gt=0"`
	Public   bool
	Fields   map[string]interface{}
}

func (m *Metadata) applyDefaults() {
	if m.MimeType == "" {
		m.MimeType = DefaultMimeType
	}
}

// Validate rejects metadata that cannot be uploaded.
func (m *Metadata) Validate() error {
	m.applyDefaults()
	if err := validate.Struct(m); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "Size" {
				return model.Errorf(model.ErrKinvey, "unable to upload a file with a size of %d", m.Size)
			}
			return model.Errorf(model.ErrKinvey, "invalid file metadata: %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid file metadata: %w", err)
	}
	return nil
}

// Document returns the metadata body sent to the blob API.
func (m *Metadata) Document() model.Document {
	doc := model.Document{}
	for k, v := range m.Fields {
		doc[k] = v
	}
	if m.ID != "" {
		doc[model.FieldID] = m.ID
	}
	if m.Filename != "" {
		doc["_filename"] = m.Filename
	}
	doc["mimeType"] = m.MimeType
	doc["size"] = m.Size
	doc["_public"] = m.Public
	return doc
}
