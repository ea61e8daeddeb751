package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/Tyrowin/relaychat/internal/client"
	"github.com/Tyrowin/relaychat/internal/server"
)

func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <IP> <port>\n", filepath.Base(os.Args[0]))
		os.Exit(1)
	}
	port, ok := server.ParsePort(os.Args[2])
	if !ok {
		fmt.Fprintf(os.Stderr, "Usage: %s <IP> <port>\n", filepath.Base(os.Args[0]))
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", net.JoinHostPort(os.Args[1], port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("Connected to server on port %s\n", port)

	if err := client.Run(conn, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		conn.Close()
		os.Exit(1)
	}
}
