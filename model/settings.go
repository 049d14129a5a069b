package model

// Theme values accepted by Settings.
const (
	ThemeLight  = "light"
	ThemeDark   = "dark"
	ThemeSystem = "system"
)

// DefaultModel is the LLM variant used until the user picks another one.
const DefaultModel = "openai/gpt-5"

// Settings are process-wide user preferences, persisted on every change.
type Settings struct {
	Model         string `json:"model"`
	Theme         string `json:"theme"`
	SendWithEnter bool   `json:"sendWithEnter"`
	SoundEffects  bool   `json:"soundEffects"`
}

// DefaultSettings returns the settings used on first start.
func DefaultSettings() Settings {
	return Settings{
		Model:         DefaultModel,
		Theme:         ThemeDark,
		SendWithEnter: true,
		SoundEffects:  false,
	}
}

// ValidTheme reports whether theme is one of the supported values.
func ValidTheme(theme string) bool {
	return theme == ThemeLight || theme == ThemeDark || theme == ThemeSystem
}

// AvailableModels lists the model identifiers the gateway accepts by default.
var AvailableModels = []string{
	"openai/gpt-5",
	"openai/gpt-5-mini",
	"openai/gpt-5-nano",
}
