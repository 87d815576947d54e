package ratings

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/tortilla/internal/apperr"
	_ "golang.org/x/image/webp"
)

// MaxImageBytes bounds an attached photo.
const MaxImageBytes = 2 * 1024 * 1024

var imageExtensions = map[string]string{
	"image/jpeg": "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

var decodedFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// ImageUpload is a photo attached to a rating. Data holds at most MaxImageBytes+1 bytes.
type ImageUpload struct {
	ContentType string
	Size        int64
	Data        []byte
}

// checkImage validates declared type, size, sniffed type and header decoding, in that order.
// It returns the canonical content type and file extension.
func checkImage(upload ImageUpload) (string, string, error) {
	declared := strings.ToLower(strings.TrimSpace(strings.SplitN(upload.ContentType, ";", 2)[0]))
	if _, ok := imageExtensions[declared]; !ok {
		return "", "", apperr.Validation("invalid_image_type")
	}

	size := upload.Size
	if int64(len(upload.Data)) > size {
		size = int64(len(upload.Data))
	}
	if size > MaxImageBytes {
		return "", "", apperr.Validation("image_too_large")
	}

	sniffed := http.DetectContentType(upload.Data)
	if _, ok := imageExtensions[sniffed]; !ok {
		return "", "", apperr.Validation("invalid_image_type")
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(upload.Data))
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindValidation, "invalid_image_type", err)
	}
	contentType, ok := decodedFormats[format]
	if !ok || contentType != sniffed {
		return "", "", apperr.Validation("invalid_image_type")
	}
	return contentType, imageExtensions[contentType], nil
}
