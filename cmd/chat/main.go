// Command chat is a terminal client used to exercise the sync engine against
// a running server: it logs in, opens a room, and prints the rendered message
// list as it changes.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"chatsync/client"
	"chatsync/models"
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:3001", "server base URL")
		username = flag.String("user", "", "username")
		password = flag.String("pass", "", "password")
		fullName = flag.String("name", "", "display name (register if set)")
		room     = flag.String("room", "", "room ID to open")
	)
	flag.Parse()

	if *username == "" || *password == "" || *room == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	c, err := client.New(client.Config{BaseURL: *baseURL})
	if err != nil {
		log.Fatalf("client: %v", err)
	}

	if *fullName != "" {
		if _, err := c.Register(ctx, models.RegisterRequest{
			Username: *username,
			Password: *password,
			FullName: *fullName,
		}); err != nil {
			log.Printf("register: %v (continuing to login)", err)
		}
	}

	auth, err := c.Login(ctx, models.LoginRequest{Username: *username, Password: *password})
	if err != nil {
		log.Fatalf("login: %v", err)
	}

	session, err := c.OpenRoom(ctx, client.SessionConfig{
		Room:        *room,
		UserID:      auth.UserID,
		DisplayName: auth.FullName,
	})
	if err != nil {
		log.Fatalf("open room: %v", err)
	}
	defer session.Close()

	render := func() {
		for _, m := range session.Messages() {
			marker := " "
			switch m.Status() {
			case models.StatusSending:
				marker = "…"
			case models.StatusRead:
				marker = "✓"
			}
			fmt.Printf("[%s] %s: %s\n", marker, m.SenderName, m.Text)
		}
		fmt.Print("> ")
	}
	defer session.OnChange(render)()
	render()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "/quit":
			return
		case line == "/seen":
			if err := session.MarkSeen(); err != nil {
				log.Printf("seen: %v", err)
			}
		case line == "":
			fmt.Print("> ")
		default:
			if err := session.Send(ctx, models.SendMessageRequest{Text: line}); err != nil {
				log.Printf("send: %v (draft kept: %q)", err, session.Draft())
			}
		}
	}
}
