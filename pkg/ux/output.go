// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the callscope CLI.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
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
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconAnchor  Icon = "⚓"
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
	case IconArrow, IconBullet:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes styled text to a writer. With Plain set it writes the same
// text without colors or boxes.
type Printer struct {
	W     io.Writer
	Plain bool
}

// NewPrinter returns a printer that styles output only for terminals.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{W: w, Plain: !IsTerminal(w)}
}

func (p *Printer) style(s lipgloss.Style, text string) string {
	if p.Plain {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if p.Plain {
		return string(i)
	}
	return i.Render()
}

// Title prints a styled title
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.W, p.style(Styles.Title, text))
}

// Line prints text unchanged.
func (p *Printer) Line(format string, args ...any) {
	fmt.Fprintf(p.W, format+"\n", args...)
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.W, "%s %s\n", p.icon(IconSuccess), p.style(Styles.Success, text))
}

// Warning prints a warning message
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.W, "%s %s\n", p.icon(IconWarning), p.style(Styles.Warning, text))
}

// Error prints an error message
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.W, "%s %s\n", p.icon(IconError), p.style(Styles.Error, text))
}

// Muted prints secondary text
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.W, p.style(Styles.Muted, text))
}

// Bullet prints an indented list item.
func (p *Printer) Bullet(indent int, text string) {
	fmt.Fprintf(p.W, "%s%s %s\n", strings.Repeat("  ", indent), p.icon(IconBullet), text)
}

// Box prints lines in a rounded box under a title.
func (p *Printer) Box(title string, lines ...string) {
	if p.Plain {
		fmt.Fprintf(p.W, "%s\n", title)
		for _, l := range lines {
			fmt.Fprintf(p.W, "  %s\n", l)
		}
		return
	}
	content := Styles.Title.Render(title)
	if len(lines) > 0 {
		content += "\n" + strings.Join(lines, "\n")
	}
	fmt.Fprintln(p.W, Styles.Box.Render(content))
}

// MutedText returns text in the muted style, or unchanged when plain.
func (p *Printer) MutedText(text string) string {
	return p.style(Styles.Muted, text)
}

// BoldText returns text in bold, or unchanged when plain.
func (p *Printer) BoldText(text string) string {
	return p.style(Styles.Bold, text)
}

// HighlightText returns highlighted text, or unchanged when plain.
func (p *Printer) HighlightText(text string) string {
	return p.style(Styles.Highlight, text)
}
