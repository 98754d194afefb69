package domain

import "time"

// NewsItem is a headline shown on the overview screen.
type NewsItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"published_at"`
}

// EducationItem is a learning resource card.
type EducationItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Level string `json:"level"` // beginner, intermediate, advanced
	URL   string `json:"url"`
}
