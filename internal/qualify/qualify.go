// Package qualify decides whether a chat message is a sync candidate and
// extracts the structured content a forum topic is built from.
package qualify

import (
	"strings"

	"github.com/forolibre/telegram-nodebb-sync/internal/telegram"
)

// TitlePrefix is the exact, case-sensitive line prefix that marks the topic
// title, trailing space included.
const TitlePrefix = "Titulo: "

// Content is the structured record extracted from a qualifying message.
// It is ephemeral: produced for one publish attempt and discarded.
type Content struct {
	Title     string
	Body      string
	Author    *telegram.User // nil for anonymous channel posts
	Date      int64          // original unix timestamp
	MessageID int64
	ChatID    int64
}

// Parse qualifies a message against the target hashtag set.
//
// A message qualifies when it has text, its lowercased text contains
// #<tag> for some target tag (substring containment), and it carries a
// non-empty title on the first line starting with TitlePrefix. The body is
// every other line in original order. Qualification failure is an expected
// outcome, not an error.
func Parse(msg telegram.Message, targetTags []string) (*Content, bool) {
	if msg.Text == "" {
		return nil, false
	}

	lowered := strings.ToLower(msg.Text)
	matched := false
	for _, tag := range targetTags {
		if tag != "" && strings.Contains(lowered, "#"+tag) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, false
	}

	lines := strings.Split(msg.Text, "\n")
	titleIndex := -1
	title := ""
	for i, line := range lines {
		if strings.HasPrefix(line, TitlePrefix) {
			title = strings.TrimSpace(strings.TrimPrefix(line, TitlePrefix))
			titleIndex = i
			break
		}
	}
	if titleIndex < 0 || title == "" {
		return nil, false
	}

	bodyLines := make([]string, 0, len(lines)-1)
	for i, line := range lines {
		if i == titleIndex {
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	body := strings.TrimSpace(strings.Join(bodyLines, "\n"))

	return &Content{
		Title:     title,
		Body:      body,
		Author:    msg.From,
		Date:      msg.Date,
		MessageID: msg.MessageID,
		ChatID:    msg.Chat.ID,
	}, true
}
