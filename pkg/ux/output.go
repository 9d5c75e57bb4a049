// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the facteur CLI.
//
// Every helper respects the active personality level. In machine mode the
// output is plain, prefix-tagged text suitable for CI logs and scripts.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorAccent  = lipgloss.Color("#2CD7C7")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

var (
	stdout  io.Writer = os.Stdout
	stderr  io.Writer = os.Stderr
	writeMu sync.Mutex
)

// SetOutput redirects helper output. Passing nil restores the process
// streams. Tests use this to capture what the CLI prints.
func SetOutput(out, errOut io.Writer) {
	writeMu.Lock()
	defer writeMu.Unlock()
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	stdout, stderr = out, errOut
}

func printOut(format string, args ...any) {
	writeMu.Lock()
	defer writeMu.Unlock()
	fmt.Fprintf(stdout, format, args...)
}

func printErr(format string, args ...any) {
	writeMu.Lock()
	defer writeMu.Unlock()
	fmt.Fprintf(stderr, format, args...)
}

// Print helpers that respect personality level

// Title prints a styled title
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	printOut("%s\n", Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		printOut("OK: %s\n", text)
	case PersonalityMinimal:
		printOut("%s %s\n", IconSuccess.Render(), text)
	default:
		printOut("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		printErr("WARN: %s\n", text)
	case PersonalityMinimal:
		printOut("%s %s\n", IconWarning.Render(), text)
	default:
		printOut("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		printErr("ERROR: %s\n", text)
	case PersonalityMinimal:
		printErr("%s %s\n", IconError.Render(), text)
	default:
		printErr("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		printOut("%s\n", text)
		return
	}
	printOut("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	printOut("%s\n", Styles.Muted.Render(text))
}

// Plain prints text verbatim on stdout regardless of personality.
func Plain(text string) {
	printOut("%s\n", text)
}

// StepStarted prints the label of a step that is about to run. The line is
// left open so StepDone can complete it.
func StepStarted(label string) {
	if GetPersonality().Level == PersonalityMachine {
		printOut("%s", label)
		return
	}
	printOut("%s %s", Styles.Muted.Render(string(IconArrow)), label)
}

// StepDone completes a StepStarted line.
func StepDone(ok bool) {
	if ok {
		if GetPersonality().Level == PersonalityMachine {
			printOut(" ...OK\n")
			return
		}
		printOut(" %s\n", Styles.Success.Render("...OK"))
		return
	}
	if GetPersonality().Level == PersonalityMachine {
		printOut(" ...FAILED\n")
		return
	}
	printOut(" %s\n", Styles.Error.Render("...FAILED"))
}

// Box prints text in a rounded box
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		printOut("%s: %s\n", title, content)
		return
	}
	printOut("%s\n", Styles.Box.Width(60).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox prints text in a warning-styled box
func WarningBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		printErr("WARN %s: %s\n", title, content)
		return
	}
	printOut("%s\n", Styles.WarningBox.Width(60).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}

// Checklist prints a numbered list of follow-up actions.
func Checklist(title string, items []string) {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s", i+1, item)
	}
	if GetPersonality().Level == PersonalityMachine {
		printOut("%s\n%s\n", title, b.String())
		return
	}
	Box(title, b.String())
}

// Table prints rows as aligned columns.
func Table(header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	format := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i < len(widths) && i < len(cells)-1 {
				parts[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
			} else {
				parts[i] = cell
			}
		}
		return strings.Join(parts, "  ")
	}

	if GetPersonality().Level == PersonalityMachine {
		for _, row := range rows {
			printOut("%s\n", strings.Join(row, "\t"))
		}
		return
	}
	printOut("%s\n", Styles.Bold.Render(format(header)))
	for _, row := range rows {
		printOut("%s\n", format(row))
	}
}
