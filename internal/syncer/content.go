package syncer

import (
	"fmt"
	"time"

	"github.com/forolibre/telegram-nodebb-sync/internal/qualify"
)

const timestampLayout = "02/01/2006 15:04"

// BuildTopicContent renders the forum post body: the message body followed
// by an italicized attribution footer with the original author and send
// time in the configured zone.
func BuildTopicContent(c *qualify.Content, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	sent := time.Unix(c.Date, 0).In(loc).Format(timestampLayout)

	author := ""
	if c.Author != nil {
		if c.Author.Username != "" {
			author = "@" + c.Author.Username
		} else if c.Author.FirstName != "" {
			author = c.Author.FirstName
		}
	}

	if author == "" {
		return fmt.Sprintf("%s\n\n_Publicado originalmente el %s_", c.Body, sent)
	}
	return fmt.Sprintf("%s\n\n_Publicado originalmente por %s el %s_", c.Body, author, sent)
}
