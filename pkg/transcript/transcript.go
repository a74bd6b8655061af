// Package transcript exports a conversation's message sequence as a
// structured dump: an ordered list of role/content records with a
// timestamp and count. Export is best-effort; a failed write never
// takes the session down.
package transcript

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/papercomputeco/banter/pkg/llm"
)

// Record is one exported message.
type Record struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Export is the serialized form of a conversation.
type Export struct {
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Messages   []Record  `json:"messages"`
}

// New builds an Export from the message sequence, preserving order.
func New(msgs []llm.Message) Export {
	records := make([]Record, len(msgs))
	for i, msg := range msgs {
		records[i] = Record{Role: msg.Role, Content: contentText(msg.Content)}
	}
	return Export{
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Messages:   records,
	}
}

// Write serializes the messages as indented JSON.
func Write(w io.Writer, msgs []llm.Message) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(New(msgs)); err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	return nil
}

// Save writes the transcript to a file readable only by the user.
func Save(path string, msgs []llm.Message) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create transcript %s: %w", path, err)
	}
	defer f.Close()

	if err := Write(f, msgs); err != nil {
		return err
	}
	return f.Close()
}

// Render formats the messages in a human-readable form, one block per
// message.
func Render(msgs []llm.Message) string {
	blocks := make([]string, len(msgs))
	for i, msg := range msgs {
		blocks[i] = fmt.Sprintf("[%s] %s", strings.ToUpper(string(msg.Role)), contentText(msg.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// contentText flattens message content for export: plain text verbatim,
// multimodal content as its text part with an [image] marker per
// attached image.
func contentText(c llm.Content) string {
	if !c.IsMultimodal() {
		return c.PlainText()
	}

	var sb strings.Builder
	for _, part := range c.PartList() {
		switch part.Type {
		case llm.PartTypeText:
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(part.Text)
		case llm.PartTypeImageURL:
			if sb.Len() > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString("[image]")
		}
	}
	return sb.String()
}
