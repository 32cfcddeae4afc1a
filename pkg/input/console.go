// Copyright (c) Microsoft Corporation. All rights reserved.
// Licensed under the MIT License.

// Package input provides the console prompt surface used by the login and
// subscription picker flows.
package input

import (
	"errors"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/fatih/color"
)

// ErrPromptCancelled indicates the user dismissed a prompt without
// answering.
var ErrPromptCancelled = errors.New("prompt cancelled")

// Console is the UI surface the account manager prompts through. Every
// method may return ErrPromptCancelled.
type Console interface {
	// Confirm asks a yes/no question.
	Confirm(message string, defaultValue bool) (bool, error)

	// Select asks the user to pick one of options, returning its index.
	Select(message string, options []string) (int, error)

	// MultiSelect asks the user to check any number of options, seeded with
	// the checked indices, returning the checked set.
	MultiSelect(message string, options []string, checked []int) ([]int, error)

	// Prompt asks for a free-form string.
	Prompt(message string, defaultValue string) (string, error)

	// Message prints an informational message.
	Message(message string)
}

type surveyConsole struct {
}

func NewConsole() Console {
	return &surveyConsole{}
}

func (c *surveyConsole) Confirm(message string, defaultValue bool) (bool, error) {
	var response bool
	err := survey.AskOne(&survey.Confirm{
		Message: message,
		Default: defaultValue,
	}, &response)

	return response, mapCancel(err)
}

func (c *surveyConsole) Select(message string, options []string) (int, error) {
	var response int
	err := survey.AskOne(&survey.Select{
		Message: message,
		Options: options,
	}, &response)

	return response, mapCancel(err)
}

func (c *surveyConsole) MultiSelect(message string, options []string, checked []int) ([]int, error) {
	defaults := make([]string, 0, len(checked))
	for _, idx := range checked {
		if idx >= 0 && idx < len(options) {
			defaults = append(defaults, options[idx])
		}
	}

	var response []int
	err := survey.AskOne(&survey.MultiSelect{
		Message: message,
		Options: options,
		Default: defaults,
	}, &response)

	return response, mapCancel(err)
}

func (c *surveyConsole) Prompt(message string, defaultValue string) (string, error) {
	var response string
	err := survey.AskOne(&survey.Input{
		Message: message,
		Default: defaultValue,
	}, &response)

	return response, mapCancel(err)
}

func (c *surveyConsole) Message(message string) {
	color.New(color.FgCyan).Println(message)
}

func mapCancel(err error) error {
	if errors.Is(err, terminal.InterruptErr) {
		return ErrPromptCancelled
	}

	return err
}
