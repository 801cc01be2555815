package chat

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	oleBytes = append([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, bytes.Repeat([]byte{0}, 16)...)
)

func TestNewAttachmentImage(t *testing.T) {
	att, err := NewAttachment("spectrum.png", "image/png", pngBytes, 0)
	require.NoError(t, err)

	assert.Equal(t, "image/png", att.MIMEType)
	assert.Equal(t, "spectrum.png", att.DisplayName)
	assert.True(t, strings.HasPrefix(att.Content, "data:image/png;base64,"))
	assert.True(t, att.IsImage())
}

func TestNewAttachmentPDFIgnoresWrongDeclaredType(t *testing.T) {
	att, err := NewAttachment("report.pdf", "application/octet-stream", pdfBytes, 0)
	require.NoError(t, err)

	assert.Equal(t, "application/pdf", att.MIMEType)
	assert.False(t, att.IsImage())
}

func TestNewAttachmentLegacyWordFallsBackToDeclaredType(t *testing.T) {
	att, err := NewAttachment("notes.doc", "application/msword", oleBytes, 0)
	require.NoError(t, err)

	assert.Equal(t, "application/msword", att.MIMEType)
}

func TestNewAttachmentRejectsPlainText(t *testing.T) {
	_, err := NewAttachment("notes.txt", "text/plain", []byte("just some notes"), 0)
	require.ErrorIs(t, err, ErrUnsupportedAttachment)
}

func TestNewAttachmentRejectsEmpty(t *testing.T) {
	_, err := NewAttachment("empty.png", "image/png", nil, 0)
	require.ErrorIs(t, err, ErrAttachmentEmpty)
}

func TestReadAttachmentEnforcesLimit(t *testing.T) {
	_, err := ReadAttachment("big.pdf", "application/pdf", bytes.NewReader(pdfBytes), 10)
	require.ErrorIs(t, err, ErrAttachmentTooLarge)

	att, err := ReadAttachment("ok.pdf", "application/pdf", bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", att.MIMEType)
}

func TestAttachmentPayload(t *testing.T) {
	att, err := NewAttachment("spectrum.png", "image/png", pngBytes, 0)
	require.NoError(t, err)

	mimeType, data, err := att.Payload()
	require.NoError(t, err)
	assert.Equal(t, "image/png", mimeType)

	decoded, err := base64.StdEncoding.DecodeString(data)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, decoded)
}

func TestAttachmentPayloadMalformed(t *testing.T) {
	cases := []string{
		"",
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:;base64,AAAA",
	}
	for _, content := range cases {
		att := &Attachment{Content: content}
		_, _, err := att.Payload()
		assert.ErrorIs(t, err, ErrMalformedDataURL, "content %q", content)
	}
}
