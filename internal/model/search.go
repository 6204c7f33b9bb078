package model

type SearchType string

const (
	SearchWeb   = SearchType("web")
	SearchImage = SearchType("image")
)

type SearchHit struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Snippet   string `json:"snippet,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}
