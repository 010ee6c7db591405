package protocol

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// Commands lists every command the server understands, in the order shown
// by the unknown-command error.
var Commands = []string{
	"login",
	"register",
	"send",
	"createTask",
	"viewTasks",
	"updateTask",
	"deleteTask",
	"viewDirectMessages",
	"viewChannelMessages",
	"sendFile",
}

type Command struct {
	Name string
	Args []string
}

// Parse turns one input line into a command. It splits on whitespace and
// reassembles quoted arguments: a token opening with '"' absorbs following
// tokens until one closes the quote, and both quotes are stripped.
// Returns nil for an empty line.
func Parse(line string) *Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	return &Command{
		Name: fields[0],
		Args: reassembleQuoted(fields[1:]),
	}
}

func reassembleQuoted(tokens []string) []string {
	var args []string
	var quoted strings.Builder
	inQuotes := false

	for _, tok := range tokens {
		switch {
		case !inQuotes && strings.HasPrefix(tok, `"`):
			rest := tok[1:]
			if len(rest) > 0 && strings.HasSuffix(rest, `"`) {
				args = append(args, strings.TrimSuffix(rest, `"`))
				continue
			}
			quoted.Reset()
			quoted.WriteString(rest)
			inQuotes = true

		case inQuotes && strings.HasSuffix(tok, `"`):
			quoted.WriteString(" ")
			quoted.WriteString(strings.TrimSuffix(tok, `"`))
			args = append(args, quoted.String())
			inQuotes = false

		case inQuotes:
			quoted.WriteString(" ")
			quoted.WriteString(tok)

		default:
			args = append(args, tok)
		}
	}

	// Unterminated quote: keep what was collected as one argument.
	if inQuotes {
		args = append(args, quoted.String())
	}

	return args
}

// JoinRest joins trailing arguments with single spaces, the "rest of line"
// field of commands whose final argument may contain whitespace.
func JoinRest(args []string, from int) string {
	if from >= len(args) {
		return ""
	}
	return strings.Join(args[from:], " ")
}

// FormatDirectPush builds the async push line delivered to an online
// direct-message recipient.
func FormatDirectPush(sender, body string) string {
	return "receivedMessage " + sender + " \"" + body + "\""
}

// FormatChannelPush builds the async push line broadcast for a channel message.
func FormatChannelPush(channel, body string) string {
	return "MSG #" + channel + ": " + body
}

// FormatFilePush builds the async push line announcing a relayed file.
// The filename is base64-encoded so spaces in it don't break client parsing.
func FormatFilePush(filename string, data []byte) string {
	name := base64.StdEncoding.EncodeToString([]byte(filename))
	payload := base64.StdEncoding.EncodeToString(data)
	return "incomingFile " + name + " " + strconv.Itoa(len(data)) + " " + payload
}
