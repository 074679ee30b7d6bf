// Package multipart builds multipart/form-data request bodies with a
// caller supplied boundary token.
package multipart

import (
	"bytes"

	"github.com/google/uuid"
)

const lineBreak = "\r\n"

// Field is a named text part
type Field struct {
	Name  string
	Value string
}

// Attachment is a named binary part
type Attachment struct {
	FieldName   string
	Filename    string
	ContentType string
	Data        []byte
}

// JPEGAttachment returns the image part expected by the catalog service
func JPEGAttachment(data []byte) *Attachment {
	return &Attachment{
		FieldName:   "files[]",
		Filename:    "image.jpg",
		ContentType: "image/jpeg",
		Data:        data,
	}
}

// Encoder writes multipart bodies delimited by Boundary. One encoder is
// meant to live for a whole client session; the boundary is not unique per
// request.
type Encoder struct {
	Boundary string
}

// NewBoundary generates a session boundary token
func NewBoundary() string {
	return "Boundary-" + uuid.NewString()
}

// NewEncoder creates an encoder with a freshly generated boundary
func NewEncoder() *Encoder {
	return &Encoder{Boundary: NewBoundary()}
}

// ContentType returns the request Content-Type header value
func (e *Encoder) ContentType() string {
	return "multipart/form-data; boundary=" + e.Boundary
}

// Encode emits fields in the given order, then the optional attachment,
// then the closing delimiter.
func (e *Encoder) Encode(fields []Field, att *Attachment) []byte {
	var body bytes.Buffer
	for _, f := range fields {
		body.WriteString("--" + e.Boundary + lineBreak)
		body.WriteString(`Content-Disposition: form-data; name="` + f.Name + `"` + lineBreak + lineBreak)
		body.WriteString(f.Value + lineBreak)
	}
	if att != nil {
		body.WriteString("--" + e.Boundary + lineBreak)
		body.WriteString(`Content-Disposition: form-data; name="` + att.FieldName + `"; filename="` + att.Filename + `"` + lineBreak)
		body.WriteString("Content-Type: " + att.ContentType + lineBreak + lineBreak)
		body.Write(att.Data)
		body.WriteString(lineBreak)
	}
	body.WriteString("--" + e.Boundary + "--" + lineBreak)
	return body.Bytes()
}
