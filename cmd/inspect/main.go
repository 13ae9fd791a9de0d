package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/tageampi/vintohub/internal/database"
	"github.com/tageampi/vintohub/internal/models"
	"github.com/tageampi/vintohub/internal/repository"
	"github.com/tageampi/vintohub/internal/services"
)

func main() {
	dbPath := flag.String("db", "data/messages", "Path to the badger message store")
	userID := flag.Int64("user", 0, "Show conversation summaries for this user instead of raw messages")
	peerID := flag.Int64("with", 0, "With -user, show the conversation with this counterpart")
	flag.Parse()

	db, err := database.OpenBadger(*dbPath, true)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repo := repository.NewBadgerMessageRepository(db, logs.GetLoggerFromString("WARN"))
	ctx := context.Background()

	switch {
	case *userID > 0 && *peerID > 0:
		messages, err := repo.GetConversation(ctx, *userID, *peerID)
		if err != nil {
			log.Fatal(err)
		}
		renderMessages(os.Stdout, messages)
	case *userID > 0:
		messages, err := repo.ListByParticipant(ctx, *userID)
		if err != nil {
			log.Fatal(err)
		}
		renderSummaries(os.Stdout, services.BuildConversationSummaries(*userID, messages))
	default:
		messages, err := repo.All(ctx)
		if err != nil {
			log.Fatal(err)
		}
		renderMessages(os.Stdout, messages)
	}
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderMessages(w io.Writer, messages []models.Message) {
	table := newTable(w, []string{"ID", "Sender", "Receiver", "Read", "Created", "Content"})
	for _, message := range messages {
		table.Append([]string{
			strconv.FormatInt(message.ID, 10),
			strconv.FormatInt(message.SenderID, 10),
			strconv.FormatInt(message.ReceiverID, 10),
			strconv.FormatBool(message.Read),
			services.FormatChatTimestamp(message.CreatedAt),
			truncate(message.Content, 60),
		})
	}
	table.Render()
	fmt.Fprintf(w, "%d message(s)\n", len(messages))
}

func renderSummaries(w io.Writer, summaries []models.ConversationSummary) {
	table := newTable(w, []string{"Counterpart", "Unread", "Last at", "Last message"})
	for _, summary := range summaries {
		table.Append([]string{
			strconv.FormatInt(summary.UserID, 10),
			strconv.Itoa(summary.UnreadCount),
			services.FormatChatTimestamp(summary.LastMessage.CreatedAt),
			truncate(summary.LastMessage.Content, 60),
		})
	}
	table.Render()
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
