package model

type PersonaID string

const (
	PersonaFast       = PersonaID("fast")
	PersonaQuality    = PersonaID("quality")
	PersonaResearcher = PersonaID("researcher")
	PersonaSocial     = PersonaID("social")
	PersonaDesigner   = PersonaID("designer")
)

type Features struct {
	WebSearch    bool `toml:"web_search" json:"web_search"`
	FileUpload   bool `toml:"file_upload" json:"file_upload"`
	Design       bool `toml:"design" json:"design"`
	Charts       bool `toml:"charts" json:"charts"`
	DeepThinking bool `toml:"deep_thinking" json:"deep_thinking"`
	Whiteboard   bool `toml:"whiteboard" json:"whiteboard"`
	Research     bool `toml:"research" json:"research"`
}

type Persona struct {
	ID           PersonaID `toml:"id" json:"id"`
	DisplayName  string    `toml:"display_name" json:"display_name"`
	Model        string    `toml:"model" json:"model"`
	SystemPrompt string    `toml:"system_prompt" json:"-"`
	Features     Features  `toml:"features" json:"features"`
}
