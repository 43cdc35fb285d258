package command

import (
	"fmt"
	"strconv"
	"strings"
)

type commandKind int

const (
	cmdHelp commandKind = iota
	cmdMyID
	cmdLinkGroup
	cmdLinkChannel
	cmdLinkDM
	cmdVerify
	cmdList
	cmdPair
	cmdUnpair
	cmdUnlink
	cmdUnknown
)

// command is the typed form of a parsed slash command. Arguments are
// validated here so the engines only ever see well-formed values.
type command struct {
	kind        commandKind
	code        string // verify
	linkAID     uint   // pair
	linkBID     uint   // pair
	dmMirroring bool   // pair
	targetID    uint   // unpair, unlink
}

// usageError carries the user-facing message for a malformed command.
type usageError struct{ message string }

func (e *usageError) Error() string { return e.message }

// parseCommand turns a slash-prefixed text into a typed command. The
// returned error, if any, is a usageError safe to show to the user.
func parseCommand(text string) (command, error) {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	// strip the @botname suffix used to address bots in groups
	if at := strings.Index(name, "@"); at > 0 {
		name = name[:at]
	}
	args := fields[1:]

	switch name {
	case "/start", "/help":
		return command{kind: cmdHelp}, nil
	case "/myid":
		return command{kind: cmdMyID}, nil
	case "/link_group":
		return command{kind: cmdLinkGroup}, nil
	case "/link_channel":
		return command{kind: cmdLinkChannel}, nil
	case "/link_dm":
		return command{kind: cmdLinkDM}, nil
	case "/verify":
		if len(args) != 1 {
			return command{kind: cmdVerify}, &usageError{"Usage: /verify CODE"}
		}
		return command{kind: cmdVerify, code: strings.ToUpper(args[0])}, nil
	case "/list":
		return command{kind: cmdList}, nil
	case "/pair":
		if len(args) < 2 || len(args) > 3 {
			return command{kind: cmdPair}, &usageError{"Usage: /pair LINK_A LINK_B [dm]"}
		}
		linkAID, errA := parseID(args[0])
		linkBID, errB := parseID(args[1])
		if errA != nil || errB != nil {
			return command{kind: cmdPair}, &usageError{"Link ids must be numbers from /list."}
		}
		dmMirroring := false
		if len(args) == 3 {
			if !strings.EqualFold(args[2], "dm") {
				return command{kind: cmdPair}, &usageError{"Usage: /pair LINK_A LINK_B [dm]"}
			}
			dmMirroring = true
		}
		return command{kind: cmdPair, linkAID: linkAID, linkBID: linkBID, dmMirroring: dmMirroring}, nil
	case "/unpair":
		if len(args) != 1 {
			return command{kind: cmdUnpair}, &usageError{"Usage: /unpair PAIR_ID"}
		}
		id, err := parseID(args[0])
		if err != nil {
			return command{kind: cmdUnpair}, &usageError{"Pair ids are numbers from /list."}
		}
		return command{kind: cmdUnpair, targetID: id}, nil
	case "/unlink":
		if len(args) != 1 {
			return command{kind: cmdUnlink}, &usageError{"Usage: /unlink LINK_ID"}
		}
		id, err := parseID(args[0])
		if err != nil {
			return command{kind: cmdUnlink}, &usageError{"Link ids are numbers from /list."}
		}
		return command{kind: cmdUnlink, targetID: id}, nil
	default:
		return command{kind: cmdUnknown}, nil
	}
}

func parseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(id), nil
}
