package session

import "strings"

// commandKind is the closed set of client commands. Raw command text is
// parsed into exactly one of these; there is no string-keyed dispatch.
type commandKind int

const (
	cmdUnknown commandKind = iota
	cmdHost
	cmdJoin
	cmdLeave
	cmdGames
	cmdStart
	cmdUsername
)

type command struct {
	kind commandKind
	args []string
}

// parseCommand normalizes a raw command line (trim, collapse whitespace,
// lower-case) and resolves the first token. Note the whole line is
// lower-cased, arguments included.
func parseCommand(raw string) command {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 {
		return command{kind: cmdUnknown}
	}
	kind := cmdUnknown
	switch fields[0] {
	case "host":
		kind = cmdHost
	case "join":
		kind = cmdJoin
	case "leave":
		kind = cmdLeave
	case "games":
		kind = cmdGames
	case "start":
		kind = cmdStart
	case "username":
		kind = cmdUsername
	}
	return command{kind: kind, args: fields[1:]}
}
