// roomlog CLI - Command line client for a roomlog server
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/eldtechnologies/roomlog/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	c := client.NewClient(os.Getenv("ROOMLOG_URL"))
	author := os.Getenv("ROOMLOG_AUTHOR")
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := c.Health()
		exitOnError(err)
		printJSON(resp)

	case "rooms":
		resp, err := c.Rooms()
		exitOnError(err)
		for _, room := range resp.Rooms {
			fmt.Printf("  %-24s %6d msgs  last active %s\n", room.Name, room.MessageCount, room.LastActive.Local().Format("2006-01-02 15:04"))
		}

	case "read":
		room := argOr(2, client.DefaultRoom)
		msgs, err := c.Messages(room, 20, 0)
		exitOnError(err)
		for _, msg := range msgs {
			ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04:05")
			body := msg.Text
			if msg.Type == "file" {
				body = fmt.Sprintf("[file] %s (%d bytes) %s", msg.FileName, msg.FileSize, msg.URL)
			}
			fmt.Printf("[%s] %s: %s\n", ts, msg.Author, body)
		}

	case "post":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: roomlog post <message> [room]")
			os.Exit(1)
		}
		msg, err := c.Post(argOr(3, client.DefaultRoom), author, os.Args[2])
		exitOnError(err)
		fmt.Printf("Posted: %s\n", msg.ID)

	case "upload":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: roomlog upload <path> [room]")
			os.Exit(1)
		}
		msg, err := c.Upload(argOr(3, client.DefaultRoom), author, os.Args[2])
		exitOnError(err)
		fmt.Printf("Uploaded: %s -> %s\n", msg.FileName, msg.URL)

	case "help", "--help", "-h":
		usage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
}

func argOr(i int, fallback string) string {
	if len(os.Args) > i && os.Args[i] != "" {
		return os.Args[i]
	}
	return fallback
}

func usage() {
	fmt.Println(`roomlog CLI - room-based chat log

Usage: roomlog <command> [options]

Commands:
  post <message> [room]   Post message to room
  upload <path> [room]    Upload a file to room
  read [room]             Read messages from room
  rooms                   List active rooms
  health                  Check server health

Environment:
  ROOMLOG_URL      Server URL (default: http://localhost:4000)
  ROOMLOG_AUTHOR   Author name for posts and uploads (default: anon)

The default room is "geral".`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
