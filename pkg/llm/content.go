package llm

import (
	"encoding/json"
	"fmt"
)

// Content part types understood by OpenAI-compatible APIs.
const (
	PartTypeText     = "text"
	PartTypeImageURL = "image_url"
)

// ImageRef references an image by URL. The URL may be an http(s) URL,
// a data URL with inline base64 content, or a local file path that the
// transport inlines before sending.
type ImageRef struct {
	URL string `json:"url"`
}

// ContentPart is one element of a multimodal message body.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageRef `json:"image_url,omitempty"`
}

// TextPart creates a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: PartTypeText, Text: text}
}

// ImagePart creates an image content part referencing the given URL or path.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: PartTypeImageURL, ImageURL: &ImageRef{URL: url}}
}

// Content is the body of a message: either plain text or an ordered list
// of multimodal parts. On the wire it serializes as a bare JSON string in
// the plain case and as an array of parts otherwise, matching the OpenAI
// SDK message format.
type Content struct {
	text  string
	parts []ContentPart
}

// Text creates plain text content.
func Text(s string) Content {
	return Content{text: s}
}

// Parts creates multimodal content from the given parts, preserving order.
func Parts(parts ...ContentPart) Content {
	return Content{parts: parts}
}

// IsMultimodal reports whether the content is a part list rather than
// plain text.
func (c Content) IsMultimodal() bool {
	return c.parts != nil
}

// PlainText returns the text of plain content, or the first text part of
// multimodal content. Image-only content yields an empty string.
func (c Content) PlainText() string {
	if c.parts == nil {
		return c.text
	}
	for _, p := range c.parts {
		if p.Type == PartTypeText {
			return p.Text
		}
	}
	return ""
}

// PartList returns a copy of the multimodal parts, or nil for plain text.
func (c Content) PartList() []ContentPart {
	if c.parts == nil {
		return nil
	}
	out := make([]ContentPart, len(c.parts))
	copy(out, c.parts)
	return out
}

// MarshalJSON emits a bare string for plain content and an array of parts
// for multimodal content.
func (c Content) MarshalJSON() ([]byte, error) {
	if c.parts == nil {
		return json.Marshal(c.text)
	}
	return json.Marshal(c.parts)
}

// UnmarshalJSON accepts either wire shape. A JSON null (seen in some
// streaming deltas) decodes as empty text.
func (c *Content) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Content{text: s}
		return nil
	}
	if string(data) == "null" {
		*c = Content{}
		return nil
	}
	var parts []ContentPart
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("content is neither string nor part list: %w", err)
	}
	*c = Content{parts: parts}
	return nil
}
