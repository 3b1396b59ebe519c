package main

import (
	"os"

	"github.com/AlecAivazis/survey/v2"
)

// Prompter asks the user interactive questions. Swapped out in tests.
type Prompter interface {
	Confirm(message string, defaultValue bool) (bool, error)
	Password(message string) (string, error)
}

// SurveyPrompter implements Prompter using the survey library. Prompts are
// drawn on stderr so stdout stays reserved for command output.
type SurveyPrompter struct{}

func (p *SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}

	if err := survey.AskOne(prompt, &result, survey.WithStdio(os.Stdin, os.Stderr, os.Stderr)); err != nil {
		return false, err
	}

	return result, nil
}

func (p *SurveyPrompter) Password(message string) (string, error) {
	result := ""
	prompt := &survey.Password{Message: message}

	if err := survey.AskOne(prompt, &result,
		survey.WithStdio(os.Stdin, os.Stderr, os.Stderr),
		survey.WithValidator(survey.Required),
	); err != nil {
		return "", err
	}

	return result, nil
}

// defaultPrompter is the prompter used in production.
var defaultPrompter Prompter = &SurveyPrompter{}

// stdinInteractive reports whether prompts can be shown. Tests override it.
var stdinInteractive = func() bool {
	return isTerminal(os.Stdin)
}
