package chat

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultAttachmentMaxBytes bounds the raw size of one attachment. Base64 expansion keeps
// the inline request part under the remote model's 20 MB request ceiling.
const DefaultAttachmentMaxBytes int64 = 15 << 20

var (
	ErrAttachmentEmpty       = errors.New("attachment is empty")
	ErrAttachmentTooLarge    = errors.New("attachment exceeds size limit")
	ErrUnsupportedAttachment = errors.New("unsupported attachment type")
	ErrMalformedDataURL      = errors.New("malformed data url")
)

var wordTypes = []string{
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// containers are generic signatures that Word files are sometimes detected as.
var containers = []string{
	"application/x-ole-storage",
	"application/zip",
	"application/octet-stream",
}

// Attachment is a single file pending inclusion in the next user turn, encoded as a data URL.
type Attachment struct {
	Content     string `json:"content"`
	MIMEType    string `json:"mimeType"`
	DisplayName string `json:"displayName"`
}

// ReadAttachment reads at most maxBytes from r and builds an Attachment from it.
func ReadAttachment(name, declaredType string, r io.Reader, maxBytes int64) (*Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultAttachmentMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return NewAttachment(name, declaredType, data, maxBytes)
}

// NewAttachment validates data against the accepted document and image types and
// encodes it as a data URL.
func NewAttachment(name, declaredType string, data []byte, maxBytes int64) (*Attachment, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultAttachmentMaxBytes
	}
	if len(data) == 0 {
		return nil, ErrAttachmentEmpty
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrAttachmentTooLarge, len(data), maxBytes)
	}

	mimeType, err := resolveMIMEType(declaredType, data)
	if err != nil {
		return nil, err
	}

	return &Attachment{
		Content:     "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MIMEType:    mimeType,
		DisplayName: strings.TrimSpace(name),
	}, nil
}

func resolveMIMEType(declaredType string, data []byte) (string, error) {
	declared := normalizeMIME(declaredType)
	detected := mimetype.Detect(data)

	for mt := detected; mt != nil; mt = mt.Parent() {
		if accepted(mt.String()) {
			return normalizeMIME(mt.String()), nil
		}
	}

	if mimetype.EqualsAny(detected.String(), containers...) && mimetype.EqualsAny(declared, wordTypes...) {
		return declared, nil
	}

	return "", fmt.Errorf("%w: detected %s, declared %q", ErrUnsupportedAttachment, detected.String(), declaredType)
}

func accepted(mimeType string) bool {
	mimeType = normalizeMIME(mimeType)
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	return mimeType == "application/pdf" || mimetype.EqualsAny(mimeType, wordTypes...)
}

func normalizeMIME(raw string) string {
	mediaType, _, _ := strings.Cut(raw, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// Payload splits the data URL into its media type and base64 body.
func (a *Attachment) Payload() (mimeType string, data string, err error) {
	rest, ok := strings.CutPrefix(a.Content, "data:")
	if !ok {
		return "", "", ErrMalformedDataURL
	}
	header, body, ok := strings.Cut(rest, ",")
	if !ok || body == "" {
		return "", "", ErrMalformedDataURL
	}
	mediaType, encoding, _ := strings.Cut(header, ";")
	if encoding != "base64" || mediaType == "" {
		return "", "", ErrMalformedDataURL
	}
	return mediaType, body, nil
}

// IsImage reports whether the attachment should be rendered inline as a picture.
func (a *Attachment) IsImage() bool {
	return strings.HasPrefix(a.Content, "data:image")
}
