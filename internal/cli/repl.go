package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/murmur/internal/engine"
	"github.com/roach88/murmur/internal/ir"
)

// commandKind classifies one line read by the run loop.
type commandKind int

const (
	cmdIntent commandKind = iota
	cmdShow
	cmdHelp
	cmdQuit
)

// command is a parsed input line. Intent is set only for cmdIntent.
type command struct {
	Kind   commandKind
	Intent engine.Intent
}

const replHelp = `commands:
  post <text>            create a post
  del <post>             delete a post
  up <post>              upvote (again to remove)
  down <post>            downvote (again to remove)
  thread <post>          open or close a comment thread
  reply <post> <text>    comment on a post
  rmc <post> <comment>   delete a comment
  compose <text>         set the compose buffer
  mode hot|recent        switch ranking mode
  city <slug>            switch city
  reload                 refetch the current city
  show                   print the view
  help                   print this help
  quit                   exit`

// parseCommand turns one input line into a command. Blank lines are an
// error the caller ignores.
func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, fmt.Errorf("empty command")
	}
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	intent := func(in engine.Intent) (command, error) {
		return command{Kind: cmdIntent, Intent: in}, nil
	}

	switch verb {
	case "show":
		return command{Kind: cmdShow}, nil
	case "help", "?":
		return command{Kind: cmdHelp}, nil
	case "quit", "exit":
		return command{Kind: cmdQuit}, nil
	case "reload":
		return intent(engine.Reload())
	case "post":
		if rest == "" {
			return command{}, fmt.Errorf("usage: post <text>")
		}
		return intent(engine.CreatePost(rest))
	case "compose":
		return intent(engine.SetCompose(rest))
	case "del":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: del <post>")
		}
		return intent(engine.DeletePost(args[0]))
	case "up", "down":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s <post>", verb)
		}
		v := ir.VoteUp
		if verb == "down" {
			v = ir.VoteDown
		}
		return intent(engine.VotePost(args[0], v))
	case "thread":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: thread <post>")
		}
		return intent(engine.ToggleThread(args[0]))
	case "reply":
		postID, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if postID == "" || text == "" {
			return command{}, fmt.Errorf("usage: reply <post> <text>")
		}
		return intent(engine.AddComment(postID, text))
	case "rmc":
		if len(args) != 2 {
			return command{}, fmt.Errorf("usage: rmc <post> <comment>")
		}
		return intent(engine.DeleteComment(args[0], args[1]))
	case "mode":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: mode hot|recent")
		}
		m, err := ir.ParseMode(args[0])
		if err != nil {
			return command{}, err
		}
		return intent(engine.SelectMode(m))
	case "city":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: city <slug>")
		}
		return intent(engine.LoadCity(args[0]))
	default:
		return command{}, fmt.Errorf("unknown command %q (try help)", verb)
	}
}
