package notify

import (
	"fmt"
	"strconv"
	"time"

	"github.com/osmwatch/osmwatch/changeset"
)

func osmLink(id int64) string {
	return fmt.Sprintf("https://www.openstreetmap.org/changeset/%d", id)
}

func osmchaLink(id int64) string {
	return fmt.Sprintf("https://osmcha.org/changesets/%d", id)
}

type textObject struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func plainText(s string) *textObject {
	return &textObject{Type: "plain_text", Text: s, Emoji: true}
}

func mrkdwn(s string) textObject {
	return textObject{Type: "mrkdwn", Text: s}
}

type buttonElement struct {
	Type  string      `json:"type"`
	Text  *textObject `json:"text"`
	URL   string      `json:"url"`
	Style string      `json:"style,omitempty"`
}

type block struct {
	Type     string          `json:"type"`
	Text     *textObject     `json:"text,omitempty"`
	Fields   []textObject    `json:"fields,omitempty"`
	Elements []buttonElement `json:"elements,omitempty"`
}

type blockKitMessage struct {
	Blocks []block `json:"blocks"`
}

func hasFlag(cs *changeset.Changeset, flag string) bool {
	if cs.Validation == nil {
		return false
	}
	for _, f := range cs.Validation.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

func headline(cs *changeset.Changeset) (header, status, warning string) {
	reasons := reasonText(cs)
	switch {
	case hasFlag(cs, "mass_deletion"):
		return "⚠️ Mass Deletion Changeset Detected", "Mass Deletion Detected", "Mass Deletion Changeset Detected"
	case hasFlag(cs, "erp"):
		return "ERP Changeset Detected", "ERP Detected", "ERP Modification Changeset Detected"
	}
	return "🔍 Changeset Needs Review", "Needs Review", reasons
}

func reasonText(cs *changeset.Changeset) string {
	if cs.Validation == nil || len(cs.Validation.Reasons) == 0 {
		return "Needs review"
	}
	text := ""
	for i, reason := range cs.Validation.Reasons {
		if i > 0 {
			text += "\n"
		}
		text += "• " + reason
	}
	return text
}

func changeCounts(cs *changeset.Changeset) (created, modified, deleted, total int) {
	if cs.Details == nil {
		return 0, 0, 0, 0
	}
	created = cs.Details.Created.Total()
	modified = cs.Details.Modified.Total()
	deleted = cs.Details.Deleted.Total()
	return created, modified, deleted, created + modified + deleted
}

// buildBlockKit renders the Incoming Webhook payload.
func buildBlockKit(cs *changeset.Changeset) *blockKitMessage {
	header, _, _ := headline(cs)
	created, modified, deleted, total := changeCounts(cs)

	msg := &blockKitMessage{Blocks: []block{
		{Type: "header", Text: plainText(header)},
		{Type: "section", Fields: []textObject{
			mrkdwn(fmt.Sprintf("*Changeset ID:*\n<%s|%d>", osmLink(cs.ID), cs.ID)),
			mrkdwn(fmt.Sprintf("*User:*\n%s", cs.User)),
			mrkdwn(fmt.Sprintf("*Created:*\n%s", cs.CreatedAt.Format(time.RFC3339))),
			mrkdwn(fmt.Sprintf("*Total Changes:*\n%d", total)),
		}},
		{Type: "section", Fields: []textObject{
			mrkdwn(fmt.Sprintf("*Created:* %d", created)),
			mrkdwn(fmt.Sprintf("*Modified:* %d", modified)),
			mrkdwn(fmt.Sprintf("*Deleted:* %d", deleted)),
		}},
	}}

	if cs.Comment != "" && cs.Comment != "No comment" {
		text := mrkdwn(fmt.Sprintf("*Comment:*\n%s", cs.Comment))
		msg.Blocks = append(msg.Blocks, block{Type: "section", Text: &text})
	}
	reasons := mrkdwn(fmt.Sprintf("*Reasons:*\n%s", reasonText(cs)))
	msg.Blocks = append(msg.Blocks,
		block{Type: "section", Text: &reasons},
		block{Type: "divider"},
		block{Type: "actions", Elements: []buttonElement{
			{Type: "button", Text: plainText("🗺️ View on OSM"), URL: osmLink(cs.ID), Style: "primary"},
			{Type: "button", Text: plainText("🔍 View on OSMCha"), URL: osmchaLink(cs.ID)},
		}},
	)
	return msg
}

// buildWorkflow renders the flat payload Slack Workflow triggers
// expect, every value a string.
func buildWorkflow(cs *changeset.Changeset) map[string]string {
	_, status, warning := headline(cs)
	created, modified, deleted, total := changeCounts(cs)

	comment := cs.Comment
	if comment == "" {
		comment = "No comment"
	}
	source := cs.Tags["source"]
	if source == "" {
		source = "Not specified"
	}
	return map[string]string{
		"changeset_id":  strconv.FormatInt(cs.ID, 10),
		"user":          cs.User,
		"total_changes": strconv.Itoa(total),
		"created":       strconv.Itoa(created),
		"modified":      strconv.Itoa(modified),
		"deleted":       strconv.Itoa(deleted),
		"warning_flags": warning,
		"comment":       comment,
		"source":        source,
		"created_at":    cs.CreatedAt.Format(time.RFC3339),
		"osm_link":      osmLink(cs.ID),
		"osmcha_link":   osmchaLink(cs.ID),
		"status":        status,
	}
}
