package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
	"github.com/tageampi/vintohub/internal/chatclient"
	"github.com/tageampi/vintohub/internal/models"
)

const fetchTimeout = 10 * time.Second

type conversationResponse struct {
	Messages []models.Message `json:"messages"`
	Error    string           `json:"error"`
}

// fetchConversation loads the thread with peer. The server marks what peer
// sent as read on the way out.
func fetchConversation(server, token string, peer int64) ([]models.Message, error) {
	agent := fiber.Get(fmt.Sprintf("%s/api/v1/messages/%d", strings.TrimRight(server, "/"), peer))
	agent.Set(fiber.HeaderAuthorization, "Bearer "+token)
	agent.Timeout(fetchTimeout)

	var body conversationResponse
	code, _, errs := agent.Struct(&body)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if code != fiber.StatusOK {
		return nil, fmt.Errorf("server answered %d: %s", code, body.Error)
	}
	return body.Messages, nil
}

func websocketURL(server string) string {
	base := strings.TrimRight(server, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}

func messagesOf(entries []chatclient.Message) []models.Message {
	return lo.Map(entries, func(entry chatclient.Message, _ int) models.Message {
		return entry.Message
	})
}
