package client

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/papercomputeco/banter/pkg/llm"
)

// encodeMessages returns a copy of the messages with local image paths
// inlined as base64 data URLs. Existing data URLs and http(s) URLs pass
// through unchanged. Plain text messages are untouched.
func encodeMessages(messages []llm.Message) ([]llm.Message, error) {
	out := make([]llm.Message, len(messages))
	copy(out, messages)

	for i, msg := range out {
		if !msg.Content.IsMultimodal() {
			continue
		}
		parts := msg.Content.PartList()
		changed := false
		for j, part := range parts {
			if part.Type != llm.PartTypeImageURL || part.ImageURL == nil {
				continue
			}
			url := part.ImageURL.URL
			if strings.HasPrefix(url, "data:") ||
				strings.HasPrefix(url, "http://") ||
				strings.HasPrefix(url, "https://") {
				continue
			}
			encoded, err := imageToDataURL(url)
			if err != nil {
				return nil, err
			}
			parts[j] = llm.ImagePart(encoded)
			changed = true
		}
		if changed {
			out[i].Content = llm.Parts(parts...)
		}
	}
	return out, nil
}

// imageToDataURL reads an image file and encodes it as a data URL.
func imageToDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image %s: %w", path, err)
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	return "data:" + imageMIMEType(path) + ";base64," + b64, nil
}

// imageMIMEType guesses the MIME type from the file extension,
// defaulting to JPEG.
func imageMIMEType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
