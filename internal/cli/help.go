/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package cli

import (
	"fmt"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/lipgloss"
)

var (
	helpFlagStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	helpCommandStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true)

	helpDefaultStyle = lipgloss.NewStyle().
				Foreground(mutedColor).
				Italic(true)
)

// StyledHelpPrinter renders kong help with the chime palette
func StyledHelpPrinter() kong.HelpPrinter {
	return func(options kong.HelpOptions, ctx *kong.Context) error {
		var sb strings.Builder
		node := ctx.Selected()
		if node == nil {
			node = ctx.Model.Node
		}

		sb.WriteString(TitleStyle.Render("Loqa Chime 🔔"))
		sb.WriteString("\n")
		if node.Help != "" {
			sb.WriteString(SubtitleStyle.Render(node.Help))
			sb.WriteString("\n")
		}

		sb.WriteString(HeaderStyle.Render("Usage:"))
		sb.WriteString("\n  ")
		sb.WriteString(node.Summary())
		sb.WriteString("\n")

		var commands []*kong.Node
		for _, child := range node.Children {
			if !child.Hidden {
				commands = append(commands, child)
			}
		}
		if len(commands) > 0 {
			sb.WriteString(HeaderStyle.Render("Commands:"))
			sb.WriteString("\n")
			for _, cmd := range commands {
				sb.WriteString("  ")
				sb.WriteString(helpCommandStyle.Render(cmd.Name))
				if cmd.Help != "" {
					sb.WriteString("  ")
					sb.WriteString(cmd.Help)
				}
				sb.WriteString("\n")
			}
		}

		var flags []*kong.Flag
		for _, group := range node.AllFlags(true) {
			flags = append(flags, group...)
		}
		if len(flags) > 0 {
			sb.WriteString(HeaderStyle.Render("Flags:"))
			sb.WriteString("\n")
			for _, f := range flags {
				sb.WriteString("  ")
				sb.WriteString(helpFlagStyle.Render(flagName(f)))
				if f.Help != "" {
					sb.WriteString("  ")
					sb.WriteString(f.Help)
				}
				if f.HasDefault && !f.IsBool() && f.Default != "" {
					sb.WriteString(" ")
					sb.WriteString(helpDefaultStyle.Render("(default: " + f.Default + ")"))
				}
				sb.WriteString("\n")
			}
		}

		sb.WriteString("\n")
		fmt.Fprint(ctx.Stdout, sb.String())
		return nil
	}
}

func flagName(f *kong.Flag) string {
	name := "--" + f.Name
	if f.Short != 0 {
		name = fmt.Sprintf("-%c, %s", f.Short, name)
	}
	if !f.IsBool() {
		name += "=" + strings.ToUpper(f.FormatPlaceHolder())
	}
	return name
}
