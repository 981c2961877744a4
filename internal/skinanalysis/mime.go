package skinanalysis

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var allowedImageTypes = []string{"image/jpeg", "image/png", "image/webp"}

// sniffImageType detects the content type from the bytes themselves and
// rejects anything that is not a supported photo format.
func sniffImageType(image []byte) (string, error) {
	detected := mimetype.Detect(image)
	for _, allowed := range allowedImageTypes {
		if detected.Is(allowed) {
			return allowed, nil
		}
	}
	return "", fmt.Errorf("unsupported image type %s, expected %s", detected.String(), strings.Join(allowedImageTypes, ", "))
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
