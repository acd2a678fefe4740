package service

import (
	"strings"

	"gamefinder/internal/core/domain"
)

// Criteria selects qualifying content. Build it with NewCriteria.
type Criteria struct {
	GameID   string
	keywords []string
}

// NewCriteria lowercases and deduplicates keywords. Blank keywords are
// dropped, otherwise every title would match.
func NewCriteria(gameID string, keywords []string) Criteria {
	seen := make(map[string]bool, len(keywords))
	c := Criteria{GameID: gameID}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		c.keywords = append(c.keywords, kw)
	}
	return c
}

// Keywords returns a copy of the normalized keyword set.
func (c Criteria) Keywords() []string {
	return append([]string(nil), c.keywords...)
}

// MatchesTitle reports whether the lowercased title contains any keyword.
func (c Criteria) MatchesTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Evaluate decides whether username played the target game. A clip
// qualifies on exact game id; a video qualifies on a keyword in its title.
// Clip links carry the broadcaster name, video links carry username.
func Evaluate(username string, clips []domain.ClipRecord, videos []domain.VideoRecord, c Criteria) domain.MatchResult {
	res := domain.MatchResult{Username: username}
	for _, clip := range clips {
		if clip.GameID == c.GameID {
			res.Clips = append(res.Clips, domain.ContentLink{Channel: clip.BroadcasterName, URL: clip.URL})
		}
	}
	for _, video := range videos {
		if c.MatchesTitle(video.Title) {
			res.Videos = append(res.Videos, domain.ContentLink{Channel: username, URL: video.URL})
		}
	}
	res.Qualifies = len(res.Clips) > 0 || len(res.Videos) > 0
	return res
}
