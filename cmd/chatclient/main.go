package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/tageampi/vintohub/internal/chatclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	server := flag.String("server", "http://localhost:8080", "Chat server base URL")
	userID := flag.Int64("user", 0, "Your user id")
	token := flag.String("token", os.Getenv("CHAT_TOKEN"), "Bearer token, required for history")
	peer := flag.Int64("with", 0, "Counterpart to open on start")
	level := flag.String("log-level", "WARN", "Log level")
	flag.Parse()

	if *userID <= 0 {
		return fmt.Errorf("-user is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var current atomic.Int64
	current.Store(*peer)

	client := chatclient.New(chatclient.Options{
		URL:    websocketURL(*server),
		UserID: *userID,
		Token:  *token,
		Log:    logs.GetLoggerFromString(*level),
		OnState: func(state chatclient.State) {
			printState(state)
		},
		OnMessage: func(counterpartID int64, message chatclient.Message) {
			printMessage(*userID, counterpartID == current.Load(), message)
		},
	})

	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	if *peer > 0 {
		openConversation(client, *server, *token, *userID, *peer)
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-client.Done():
			return fmt.Errorf("connection closed by server")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			handleLine(client, *server, *token, *userID, &current, line)
		}
	}
}

func handleLine(client *chatclient.Client, server, token string, userID int64, current *atomic.Int64, line string) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return
	case strings.HasPrefix(line, "/with "):
		peer, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/with ")), 10, 64)
		if err != nil || peer <= 0 {
			color.Red.Println("usage: /with <user id>")
			return
		}
		current.Store(peer)
		openConversation(client, server, token, userID, peer)
	case line == "/quit":
		_ = client.Close()
	default:
		peer := current.Load()
		if peer == 0 {
			color.Yellow.Println("pick a counterpart first: /with <user id>")
			return
		}
		if err := client.Send(peer, line); err != nil {
			color.Red.Printf("not sent: %v\n", err)
		}
	}
}

func openConversation(client *chatclient.Client, server, token string, userID, peer int64) {
	if token != "" {
		history, err := fetchConversation(server, token, peer)
		if err != nil {
			color.Red.Printf("history unavailable: %v\n", err)
		} else {
			client.Load(peer, history)
		}
	}

	color.New(color.BgBlack, color.FgGreen).Printf("  ====== conversation with %d ======  \n", peer)
	now := time.Now()
	for _, group := range chatclient.GroupByDate(messagesOf(client.Conversation(peer)), time.Local) {
		color.Gray.Printf("-- %s --\n", group.Label(now))
		for _, message := range group.Messages {
			printMessage(userID, true, chatclient.Message{Message: message})
		}
	}
}

func printState(state chatclient.State) {
	switch state {
	case chatclient.Connected:
		color.Green.Printf("[%s]\n", state)
	case chatclient.Connecting:
		color.Yellow.Printf("[%s]\n", state)
	default:
		color.Red.Printf("[%s]\n", state)
	}
}

func printMessage(userID int64, active bool, message chatclient.Message) {
	stamp := message.CreatedAt.Local().Format("15:04")
	switch {
	case message.SenderID == userID:
		color.Cyan.Printf("%s you -> %d: %s", stamp, message.ReceiverID, message.Content)
		if message.Status != "" {
			color.Gray.Printf(" (%s)", message.Status)
		}
		fmt.Println()
	case active:
		color.Magenta.Printf("%s %d: %s\n", stamp, message.SenderID, message.Content)
	default:
		color.Yellow.Printf("%s new message from %d (/with %d to open)\n", stamp, message.SenderID, message.SenderID)
	}
}
