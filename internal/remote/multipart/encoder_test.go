package multipart

import (
	"bytes"
	"io"
	"mime"
	stdmultipart "mime/multipart"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgetFields = []Field{
	{Name: "name", Value: "Widget"},
	{Name: "type", Value: "type 1"},
	{Name: "price", Value: "9.99"},
	{Name: "tax", Value: "5"},
}

func TestEncodeFieldsOnly(t *testing.T) {
	enc := &Encoder{Boundary: "Boundary-test"}
	body := string(enc.Encode(widgetFields, nil))

	want := "--Boundary-test\r\n" +
		"Content-Disposition: form-data; name=\"name\"\r\n\r\nWidget\r\n" +
		"--Boundary-test\r\n" +
		"Content-Disposition: form-data; name=\"type\"\r\n\r\ntype 1\r\n" +
		"--Boundary-test\r\n" +
		"Content-Disposition: form-data; name=\"price\"\r\n\r\n9.99\r\n" +
		"--Boundary-test\r\n" +
		"Content-Disposition: form-data; name=\"tax\"\r\n\r\n5\r\n" +
		"--Boundary-test--\r\n"
	assert.Equal(t, want, body)
	assert.Equal(t, 4, strings.Count(body, "--Boundary-test\r\n"))
	assert.True(t, strings.HasSuffix(body, "--Boundary-test--\r\n"))
	assert.NotContains(t, body, "Content-Type")
}

func TestEncodeWithImage(t *testing.T) {
	enc := &Encoder{Boundary: "Boundary-test"}
	img := []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}
	body := enc.Encode(widgetFields, JPEGAttachment(img))

	s := string(body)
	assert.Equal(t, 5, strings.Count(s, "--Boundary-test\r\n"))
	imgPart := "--Boundary-test\r\n" +
		"Content-Disposition: form-data; name=\"files[]\"; filename=\"image.jpg\"\r\n" +
		"Content-Type: image/jpeg\r\n\r\n" + string(img) + "\r\n" +
		"--Boundary-test--\r\n"
	assert.True(t, strings.HasSuffix(s, imgPart))
	// image part comes after the last text field
	assert.Less(t, strings.Index(s, `name="tax"`), strings.Index(s, `name="files[]"`))
}

func TestEncodeParsesWithStandardReader(t *testing.T) {
	enc := NewEncoder()
	img := bytes.Repeat([]byte{0xab}, 1024)
	body := enc.Encode(widgetFields, JPEGAttachment(img))

	mediaType, params, err := mime.ParseMediaType(enc.ContentType())
	require.NoError(t, err)
	assert.Equal(t, "multipart/form-data", mediaType)
	assert.Equal(t, enc.Boundary, params["boundary"])

	reader := stdmultipart.NewReader(bytes.NewReader(body), params["boundary"])
	var names []string
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(part)
		require.NoError(t, err)
		names = append(names, part.FormName())
		if part.FormName() == "files[]" {
			assert.Equal(t, "image.jpg", part.FileName())
			assert.Equal(t, "image/jpeg", part.Header.Get("Content-Type"))
			assert.Equal(t, img, data)
		}
		if part.FormName() == "price" {
			assert.Equal(t, "9.99", string(data))
		}
	}
	assert.Equal(t, []string{"name", "type", "price", "tax", "files[]"}, names)
}

func TestBoundaryPerEncoder(t *testing.T) {
	enc := NewEncoder()
	assert.True(t, strings.HasPrefix(enc.Boundary, "Boundary-"))

	first := enc.Encode(widgetFields[:1], nil)
	second := enc.Encode(widgetFields[1:2], nil)
	assert.True(t, bytes.HasPrefix(first, []byte("--"+enc.Boundary)))
	assert.True(t, bytes.HasPrefix(second, []byte("--"+enc.Boundary)))
	assert.NotEqual(t, enc.Boundary, NewEncoder().Boundary)
}
