package twitch

import "strings"

// ircMessage is a single parsed IRC line.
type ircMessage struct {
	Tags     map[string]string
	Nick     string
	Command  string
	Params   []string
	Trailing string
}

// parseIRCLine parses one line of the Twitch IRC dialect: optional @tags,
// optional :prefix, command, middle params, optional :trailing.
func parseIRCLine(line string) ircMessage {
	message := ircMessage{Tags: map[string]string{}}
	rest := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

	if strings.HasPrefix(rest, "@") {
		rawTags, remainder, found := strings.Cut(rest[1:], " ")
		if !found {
			return message
		}
		for _, rawTag := range strings.Split(rawTags, ";") {
			key, value, _ := strings.Cut(rawTag, "=")
			message.Tags[key] = value
		}
		rest = remainder
	}

	if strings.HasPrefix(rest, ":") {
		prefix, remainder, found := strings.Cut(rest[1:], " ")
		if !found {
			return message
		}
		if nick, _, hasUser := strings.Cut(prefix, "!"); hasUser {
			message.Nick = nick
		}
		rest = remainder
	}

	if body, trailing, hasTrailing := strings.Cut(rest, " :"); hasTrailing {
		message.Trailing = trailing
		rest = body
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return message
	}
	message.Command = fields[0]
	message.Params = fields[1:]
	return message
}
