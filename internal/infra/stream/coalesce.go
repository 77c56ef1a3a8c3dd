// File: internal/infra/stream/coalesce.go
package stream

import "agentboard/internal/domain/model"

// ItemKind distinguishes coalesced display items.
type ItemKind string

const (
	ItemParagraph ItemKind = "paragraph"
	ItemOther     ItemKind = "other"
)

// Item is one display unit: either a merged text paragraph or a pass-through
// non-text message.
type Item struct {
	Kind    ItemKind
	Text    string              // paragraph only
	Message model.StreamMessage // other only
}

// Coalesce merges consecutive assistant text fragments into paragraphs.
// Any non-text message flushes the accumulated paragraph before being
// emitted itself; end of input flushes the remainder. Pure over its input,
// so re-running it over the same slice restarts from scratch.
func Coalesce(msgs []model.StreamMessage) []Item {
	var items []Item
	var paragraph string

	flush := func() {
		if paragraph != "" {
			items = append(items, Item{Kind: ItemParagraph, Text: paragraph})
			paragraph = ""
		}
	}

	for _, m := range msgs {
		if m.Kind == model.MsgAssistantText {
			paragraph += m.Content
			continue
		}
		flush()
		items = append(items, Item{Kind: ItemOther, Message: m})
	}
	flush()
	return items
}
