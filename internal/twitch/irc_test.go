package twitch

import "testing"

func TestParseIRCLine(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name         string
		line         string
		wantCommand  string
		wantNick     string
		wantTrailing string
		wantParam    string
	}{
		{
			name:         "tagged privmsg",
			line:         "@badge-info=;display-name=Viewer :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #channel :!balance",
			wantCommand:  "PRIVMSG",
			wantNick:     "viewer",
			wantTrailing: "!balance",
			wantParam:    "#channel",
		},
		{
			name:         "server ping",
			line:         "PING :tmi.twitch.tv",
			wantCommand:  "PING",
			wantTrailing: "tmi.twitch.tv",
		},
		{
			name:        "reconnect",
			line:        ":tmi.twitch.tv RECONNECT",
			wantCommand: "RECONNECT",
		},
		{
			name:         "notice",
			line:         ":tmi.twitch.tv NOTICE * :Login authentication failed",
			wantCommand:  "NOTICE",
			wantTrailing: "Login authentication failed",
			wantParam:    "*",
		},
		{
			name:         "trailing with colons",
			line:         ":viewer!viewer@host PRIVMSG #channel :!transfer 3 @Other :)",
			wantCommand:  "PRIVMSG",
			wantNick:     "viewer",
			wantTrailing: "!transfer 3 @Other :)",
			wantParam:    "#channel",
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			message := parseIRCLine(testCase.line)
			if message.Command != testCase.wantCommand {
				test.Fatalf("command: expected %q, got %q", testCase.wantCommand, message.Command)
			}
			if message.Nick != testCase.wantNick {
				test.Fatalf("nick: expected %q, got %q", testCase.wantNick, message.Nick)
			}
			if message.Trailing != testCase.wantTrailing {
				test.Fatalf("trailing: expected %q, got %q", testCase.wantTrailing, message.Trailing)
			}
			if testCase.wantParam != "" {
				if len(message.Params) == 0 || message.Params[0] != testCase.wantParam {
					test.Fatalf("params: expected %q, got %v", testCase.wantParam, message.Params)
				}
			}
		})
	}
}

func TestParseIRCLineKeepsTags(test *testing.T) {
	test.Parallel()
	message := parseIRCLine("@display-name=Viewer;mod=1 :viewer!viewer@host PRIVMSG #channel :hi")
	if message.Tags["display-name"] != "Viewer" {
		test.Fatalf("expected display-name tag, got %v", message.Tags)
	}
	if message.Tags["mod"] != "1" {
		test.Fatalf("expected mod tag, got %v", message.Tags)
	}
}
