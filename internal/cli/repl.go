package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dmitrijs2005/sshkeeper/internal/common"
	"github.com/dmitrijs2005/sshkeeper/internal/dispatch"
)

// handler is the minimal dispatcher surface the REPL needs; tests provide a
// lightweight stub.
type handler interface {
	Handle(ctx context.Context, cmd dispatch.Command) dispatch.Reply
}

// writePNG is a test seam for persisting rendered QR images.
var writePNG = func(data []byte) (string, error) {
	f, err := os.CreateTemp("", "credentials-*.png")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// runREPL reads commands from the scanner and dispatches them until EOF or
// "exit"/"quit". Commands use the same names and argument order as the chat
// transport, without the leading slash.
//
// Secrets are never taken from the command line: for useradd, changepass and
// share the password argument is omitted and prompted for without echo.
func runREPL(ctx context.Context, h handler, scanner *bufio.Scanner, w io.Writer) {
	for {
		fmt.Fprint(w, "sshkeeper> ")
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		name := strings.TrimPrefix(parts[0], "/")
		args := parts[1:]

		if name == "exit" || name == "quit" {
			fmt.Fprintln(w, "Bye!")
			return
		}

		if promptsForSecret(name, len(args)) {
			pw, err := GetPassword(w)
			if err != nil {
				fmt.Fprintln(w, "could not read password:", err)
				continue
			}
			args = append(args, string(pw))
			common.WipeByteArray(pw)
		}

		reply := h.Handle(ctx, dispatch.Command{Name: name, Args: args, From: 0})
		fmt.Fprintln(w, reply.Text)

		if reply.PNG != nil {
			path, err := writePNG(reply.PNG)
			if err != nil {
				fmt.Fprintln(w, "could not save QR image:", err)
				continue
			}
			fmt.Fprintln(w, "QR image written to", path)
		}
	}
}

// promptsForSecret reports whether the command expects a trailing password
// argument that the operator left off for interactive entry.
func promptsForSecret(name string, argc int) bool {
	switch name {
	case "useradd":
		return argc == 3
	case "changepass", "share":
		return argc == 1
	default:
		return false
	}
}
