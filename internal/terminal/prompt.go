package terminal

import (
	"fmt"
	"io"
	"strings"

	input "github.com/tcnksm/go-input"
)

// Setup drives the interactive first-run prompts.
type Setup struct {
	ui *input.UI
}

// NewSetup builds the prompt UI over the given streams.
func NewSetup(in io.Reader, out io.Writer) *Setup {
	return &Setup{ui: &input.UI{Reader: in, Writer: out}}
}

// AskAPIKey prompts for the provider API key with masked input.
func (s *Setup) AskAPIKey(validate func(string) error) (string, error) {
	return s.ui.Ask("Enter your Poe API key (input is hidden)", &input.Options{
		Required:     true,
		Loop:         true,
		Mask:         true,
		ValidateFunc: validate,
	})
}

// SelectModel shows the numbered model menu and returns the choice.
func (s *Setup) SelectModel(models []string) (string, error) {
	if len(models) == 0 {
		return "", fmt.Errorf("no models to choose from")
	}
	return s.ui.Select("Select a model", models, &input.Options{
		Default: models[0],
		Loop:    true,
	})
}

// ConfirmContinue asks whether to resume the previous session.
func (s *Setup) ConfirmContinue() (bool, error) {
	answer, err := s.ui.Ask("Continue last session? (y/n)", &input.Options{
		Default:     "n",
		HideDefault: true,
		Loop:        true,
		ValidateFunc: func(answer string) error {
			switch strings.ToLower(strings.TrimSpace(answer)) {
			case "y", "yes", "n", "no", "":
				return nil
			}
			return fmt.Errorf("answer y or n")
		},
	})
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}
