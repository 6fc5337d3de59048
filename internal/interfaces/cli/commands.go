package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// SlashCommand represents a parsed slash command
type SlashCommand struct {
	Name string
	Args []string
}

// ParseSlashCommand parses a slash command from user input
func ParseSlashCommand(input string) *SlashCommand {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return &SlashCommand{Name: name, Args: args}
}

// CommandResult is the output of executing a slash command
type CommandResult struct {
	Output string
	IsQuit bool
}

// ExecuteCommand handles slash commands inside the support REPL
func ExecuteCommand(cmd *SlashCommand, server string) CommandResult {
	switch cmd.Name {
	case "help", "h":
		return CommandResult{Output: renderHelp()}
	case "exit", "quit", "q":
		return CommandResult{IsQuit: true}
	case "server":
		return CommandResult{Output: fmt.Sprintf("Сервер: %s", server)}
	case "version", "v":
		return CommandResult{Output: fmt.Sprintf("BotForge v%s", Version)}
	default:
		return CommandResult{Output: fmt.Sprintf("Неизвестная команда: /%s  Введите /help", cmd.Name)}
	}
}

func renderHelp() string {
	titleStyle := lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	cmdStyle := lipgloss.NewStyle().Foreground(colorGreen)
	descStyle := lipgloss.NewStyle().Foreground(colorGray)

	cmds := []struct {
		name string
		desc string
	}{
		{"/help", "показать эту справку"},
		{"/server", "адрес подключённого сервера"},
		{"/version", "версия клиента"},
		{"/exit", "выход"},
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("◆ Доступные команды"))
	sb.WriteString("\n\n")

	for _, c := range cmds {
		sb.WriteString(fmt.Sprintf("  %s  %s\n",
			cmdStyle.Render(fmt.Sprintf("%-12s", c.name)),
			descStyle.Render(c.desc),
		))
	}

	return sb.String()
}
