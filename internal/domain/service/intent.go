package service

import (
	"fmt"
	"strings"

	"github.com/botforge/botforge/internal/domain/entity"
)

// System prompt for the intent probe. The bot's own persona is
// deliberately replaced so classification stays terse.
const intentSystemPrompt = "Ты помощник для определения команд. Отвечай кратко и точно."

// Literal the model answers when no command fits.
const intentNoMatch = "НЕТ"

// BuildIntentPrompt renders the classification request: the visible
// commands with their descriptions, the user message, and the answer
// contract.
func BuildIntentPrompt(visible []*entity.Command, userText string) string {
	var b strings.Builder
	b.WriteString("Доступные команды:\n")
	for _, c := range visible {
		desc := c.Description
		if desc == "" {
			desc = "без описания"
		}
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, desc)
	}
	fmt.Fprintf(&b, "\nСообщение пользователя: \"%s\"\n\n", userText)
	b.WriteString("Если сообщение пользователя соответствует одной из команд, ответь только названием этой команды. Если не соответствует ни одной, ответь ")
	b.WriteString(intentNoMatch)
	b.WriteString(".")
	return b.String()
}

// MatchIntent resolves the probe response to a command. A command
// matches when its name occurs case-insensitively in the response and
// the refusal literal does not; the first match in visibility order
// wins.
func MatchIntent(response string, visible []*entity.Command) *entity.Command {
	if strings.Contains(response, intentNoMatch) {
		return nil
	}
	lower := strings.ToLower(response)
	for _, c := range visible {
		if c.Name == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			return c
		}
	}
	return nil
}
