package catalog

// Model identifies one selectable remote model/bot.
type Model struct {
	Name string `json:"name"`
}

// Seed provides the default model list offered by the selection menu.
func Seed() []Model {
	return []Model{
		{Name: "Assistant"},
		{Name: "Web-Search"},
		{Name: "Claude-Opus-4.1"},
		{Name: "Claude-Sonnet-4"},
		{Name: "GPT-5"},
		{Name: "GPT-5-Chat"},
		{Name: "GPT-5-mini"},
		{Name: "Gemini-2.5-Pro"},
		{Name: "Grok-4"},
	}
}
