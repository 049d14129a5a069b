package chat

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"lumora/config"
	"lumora/model"
)

// MaxAttachmentSize caps a single attached file.
const MaxAttachmentSize = 20 << 20

// Attachment is a file picked by the user. MIMEType is the type the picker
// declared and may be empty; the content is sniffed regardless.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// LoadAttachment reads a file from disk.
func LoadAttachment(path string) (Attachment, error) {
	path = config.ExpandPath(path)

	info, err := os.Stat(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	if info.IsDir() {
		return Attachment{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxAttachmentSize {
		return Attachment{}, fmt.Errorf("%s is larger than %d MB", filepath.Base(path), MaxAttachmentSize>>20)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Attachment{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	return Attachment{Name: filepath.Base(path), Data: data}, nil
}

// IsImage reports whether the attachment holds an image.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.mediaType(), "image/")
}

// mediaType prefers the sniffed type and falls back to the declared one
// when the content is not recognised.
func (a Attachment) mediaType() string {
	detected := mimetype.Detect(a.Data)
	if detected.Is("application/octet-stream") && a.MIMEType != "" {
		return a.MIMEType
	}
	return detected.String()
}

// DataURI encodes the attachment as data:<type>;base64,<payload>.
func (a Attachment) DataURI() string {
	mediaType := a.mediaType()
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(a.Data)
}

// imageAttachments converts the image files to message attachments and
// drops everything else.
func imageAttachments(files []Attachment) []model.ImageAttachment {
	var images []model.ImageAttachment
	for _, f := range files {
		if !f.IsImage() {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Chat] dropping non-image attachment %q (%s)", f.Name, f.mediaType())
			}
			continue
		}
		images = append(images, model.ImageAttachment{URL: f.DataURI(), Name: f.Name})
	}
	return images
}
