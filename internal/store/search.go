package store

import (
	"strings"

	"github.com/matheus3301/msgr/internal/model"
)

// SearchResult holds a message with a short snippet around the match.
type SearchResult struct {
	Message model.Message
	Snippet string
}

// SearchMessages finds cached messages whose content contains query,
// case-insensitively, newest first. An empty chatID searches every chat.
func (db *DB) SearchMessages(query, chatID string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 50
	}

	q := `
		SELECT id, chat_id, sender_id, sender_name, content, timestamp
		FROM messages
		WHERE content LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(query) + "%"}
	if chatID != "" {
		q += " AND chat_id = ?"
		args = append(args, chatID)
	}
	q += " ORDER BY timestamp DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	results := make([]SearchResult, 0, len(msgs))
	for _, m := range msgs {
		results = append(results, SearchResult{Message: m, Snippet: snippet(m.Content, query, 32)})
	}
	return results, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet marks the first match with << >> and trims to about width runes
// of context on each side.
func snippet(content, query string, width int) string {
	lower := strings.ToLower(content)
	if len(lower) != len(content) {
		lower = content
	}
	idx := strings.Index(lower, strings.ToLower(query))
	if idx < 0 || query == "" {
		return content
	}
	end := idx + len(query)
	start := idx
	for n := 0; start > 0 && n < width; n++ {
		start--
	}
	stop := end
	for n := 0; stop < len(content) && n < width; n++ {
		stop++
	}
	// Keep byte offsets on rune boundaries.
	for start > 0 && !isRuneStart(content[start]) {
		start--
	}
	for stop < len(content) && !isRuneStart(content[stop]) {
		stop++
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(content[start:idx])
	b.WriteString("<<")
	b.WriteString(content[idx:end])
	b.WriteString(">>")
	b.WriteString(content[end:stop])
	if stop < len(content) {
		b.WriteString("...")
	}
	return b.String()
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
