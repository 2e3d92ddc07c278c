package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const helpText = `commands:
  /timeout <user>      short timeout
  /longtimeout <user>  long timeout
  /ban <user>          ban
  /unban <user>        unban
  /user <name>         print a user's id
  /quit                exit
<user> is a numeric id or a username.`

// chatClient is the part of *glimesh.Client the prompt drives.
type chatClient interface {
	SendMessage(ctx context.Context, text string) error
	ShortTimeout(ctx context.Context, userID int) error
	LongTimeout(ctx context.Context, userID int) error
	BanUser(ctx context.Context, userID int) error
	UnbanUser(ctx context.Context, userID int) error
	UserID(ctx context.Context, username string) (int, error)
}

var errQuit = errors.New("quit")

// parseLine splits a slash command from its argument. Plain text returns an
// empty command.
func parseLine(line string) (cmd, arg string) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line
	}
	cmd, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(cmd), strings.TrimSpace(arg)
}

// execute runs one input line against c.
func execute(ctx context.Context, c chatClient, out io.Writer, line string) error {
	cmd, arg := parseLine(line)

	var action func(context.Context, int) error
	switch cmd {
	case "":
		if arg == "" {
			return nil
		}
		return c.SendMessage(ctx, arg)
	case "quit", "exit":
		return errQuit
	case "help":
		fmt.Fprintln(out, helpText)
		return nil
	case "user":
		id, err := c.UserID(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s = %d\n", arg, id)
		return nil
	case "timeout":
		action = c.ShortTimeout
	case "longtimeout":
		action = c.LongTimeout
	case "ban":
		action = c.BanUser
	case "unban":
		action = c.UnbanUser
	default:
		return fmt.Errorf("unknown command /%s (try /help)", cmd)
	}

	if arg == "" {
		return fmt.Errorf("/%s needs a user", cmd)
	}
	id, err := resolveUser(ctx, c, arg)
	if err != nil {
		return err
	}
	return action(ctx, id)
}

func resolveUser(ctx context.Context, c chatClient, arg string) (int, error) {
	if id, err := strconv.Atoi(arg); err == nil && id > 0 {
		return id, nil
	}
	return c.UserID(ctx, strings.TrimPrefix(arg, "@"))
}

// readInput executes stdin lines until EOF or /quit, then calls stop.
func readInput(ctx context.Context, in io.Reader, out io.Writer, c chatClient, stop func()) {
	defer stop()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		err := execute(ctx, c, out, scanner.Text())
		if errors.Is(err, errQuit) {
			return
		}
		if err != nil {
			fmt.Fprintln(out, "error:", err)
		}
	}
}
