package tui

import (
	"strings"
)

// Slash commands understood by the chat input
const (
	cmdNew      = "new"
	cmdRegen    = "regen"
	cmdStop     = "stop"
	cmdRefresh  = "refresh"
	cmdRecover  = "recover"
	cmdCopy     = "copy"
	cmdModel    = "model"
	cmdTemplate = "template"
	cmdHistory  = "history"
	cmdOpen     = "open"
	cmdExport   = "export"
	cmdHelp     = "help"
	cmdQuit     = "quit"
)

var commandAliases = map[string]string{
	"exit":  cmdQuit,
	"q":     cmdQuit,
	"retry": cmdRegen,
	"clear": cmdNew,
}

var commandHelp = []struct{ name, desc string }{
	{"/new", "start a new conversation"},
	{"/open <id>", "open a conversation"},
	{"/regen", "regenerate the last reply"},
	{"/stop", "stop the reply (Esc)"},
	{"/refresh [kind]", "reload everything, or one list"},
	{"/recover", "reset and reload after errors"},
	{"/copy", "copy the last reply"},
	{"/model [name]", "show or select the model"},
	{"/template [name|none]", "show or select the prompt template"},
	{"/history <n>", "messages of context sent"},
	{"/export [md|json|yaml]", "copy the conversation export"},
	{"/quit", "leave"},
}

type slashCommand struct {
	name string
	arg  string
}

// parseCommand splits "/name arg..." input. ok is false for plain messages.
func parseCommand(input string) (slashCommand, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || len(input) == 1 {
		return slashCommand{}, false
	}

	name, arg, _ := strings.Cut(input[1:], " ")
	name = strings.ToLower(name)
	if alias, ok := commandAliases[name]; ok {
		name = alias
	}
	return slashCommand{name: name, arg: strings.TrimSpace(arg)}, true
}

func helpText() string {
	width := 0
	for _, h := range commandHelp {
		width = max(width, len(h.name))
	}

	var sb strings.Builder
	for _, h := range commandHelp {
		sb.WriteString(statusKeyStyle.Render(h.name + strings.Repeat(" ", width-len(h.name))))
		sb.WriteString("  ")
		sb.WriteString(statusDescStyle.Render(h.desc))
		sb.WriteString("\n")
	}
	return sb.String()
}
