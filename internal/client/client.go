// Package client implements the interactive relaychat client: it prints the
// server greeting, then alternates between sending one operator line and
// printing one reply.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// BufferSize bounds one read from the server.
const BufferSize = 2048

// Run drives conn until the server says goodbye, closes the connection or
// in runs out of lines. It does not close conn.
func Run(conn net.Conn, in io.Reader, out io.Writer) error {
	buf := make([]byte, BufferSize)

	welcome, err := receive(conn, buf)
	if err != nil {
		return fmt.Errorf("reading welcome: %w", err)
	}
	fmt.Fprintln(out, welcome)

	lines := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "Enter message: ")
		line, readErr := lines.ReadString('\n')
		if line == "" && readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", readErr)
		}

		if err := send(conn, line); err != nil {
			return fmt.Errorf("writing to server: %w", err)
		}

		reply, err := receive(conn, buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "Disconnected from server.")
				return nil
			}
			return fmt.Errorf("reading from server: %w", err)
		}
		fmt.Fprintln(out, reply)

		if strings.Contains(reply, "exit") {
			fmt.Fprintln(out, "Disconnected from server.")
			return nil
		}
	}
}

// send writes line as typed, except that a bare "exit" goes out without its
// line terminator because the server only honors the exact four bytes.
func send(conn net.Conn, line string) error {
	if strings.TrimRight(line, "\r\n") == "exit" {
		line = "exit"
	}
	_, err := io.WriteString(conn, line)
	return err
}

func receive(conn net.Conn, buf []byte) (string, error) {
	n, err := conn.Read(buf)
	if n > 0 {
		return string(buf[:n]), nil
	}
	if err == nil {
		err = io.EOF
	}
	return "", err
}
