// Package notify pushes booking events to studio staff over Telegram.
package notify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"studiobook/internal/events"
	"studiobook/internal/models"
)

const (
	// sendQueueSize bounds how many unsent notifications may pile up before
	// new ones are dropped. Event handlers never block the request path.
	sendQueueSize = 64

	// requestTimeout caps a single Telegram API call.
	requestTimeout = 30 * time.Second
)

// MessageSender is the subset of the Telegram bot API the notifier uses.
type MessageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type queuedEvent struct {
	eventType string
	booking   models.Booking
}

// TelegramNotifier forwards booking lifecycle events to an operator chat.
// Sends happen on a background worker so a slow Telegram API never stalls
// the booking request that produced the event.
type TelegramNotifier struct {
	bot    MessageSender
	chatID int64
	log    *zerolog.Logger
	queue  chan queuedEvent
}

// NewTelegramNotifier creates a notifier bound to the operator chat.
func NewTelegramNotifier(token string, chatID int64, log *zerolog.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint,
		&http.Client{Timeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("telegram init: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifier connected")
	return newNotifier(bot, chatID, log), nil
}

// NewTelegramNotifierWithSender wires a custom sender, used in tests.
func NewTelegramNotifierWithSender(sender MessageSender, chatID int64, log *zerolog.Logger) *TelegramNotifier {
	return newNotifier(sender, chatID, log)
}

func newNotifier(sender MessageSender, chatID int64, log *zerolog.Logger) *TelegramNotifier {
	n := &TelegramNotifier{
		bot:    sender,
		chatID: chatID,
		log:    log,
		queue:  make(chan queuedEvent, sendQueueSize),
	}
	go n.run()
	return n
}

// SubscribeTo registers the notifier on the booking event bus.
func (n *TelegramNotifier) SubscribeTo(bus *events.Bus) {
	bus.Subscribe(events.TypeBookingCreated, n.handle)
	bus.Subscribe(events.TypeBookingUpdated, n.handle)
	bus.Subscribe(events.TypeBookingCancelled, n.handle)
}

// handle decodes the event and enqueues it without blocking. When the queue
// is full the notification is dropped rather than delaying the caller.
func (n *TelegramNotifier) handle(event events.Event) error {
	var b models.Booking
	if err := json.Unmarshal(event.Payload, &b); err != nil {
		n.log.Error().Err(err).Str("type", event.Type).Msg("Failed to decode booking event")
		return err
	}

	select {
	case n.queue <- queuedEvent{eventType: event.Type, booking: b}:
	default:
		n.log.Warn().Str("booking_id", b.ID).Msg("Notification queue full, dropping")
	}
	return nil
}

func (n *TelegramNotifier) run() {
	for q := range n.queue {
		msg := tgbotapi.NewMessage(n.chatID, formatBookingMessage(q.eventType, &q.booking))
		if _, err := n.bot.Send(msg); err != nil {
			n.log.Error().Err(err).Str("booking_id", q.booking.ID).
				Msg("Failed to send Telegram notification")
		}
	}
}

func formatBookingMessage(eventType string, b *models.Booking) string {
	var sb strings.Builder

	switch eventType {
	case events.TypeBookingCreated:
		sb.WriteString("📸 New booking\n")
	case events.TypeBookingCancelled:
		sb.WriteString("❌ Booking cancelled\n")
	default:
		sb.WriteString(fmt.Sprintf("✏️ Booking updated (%s)\n", b.Status))
	}

	fmt.Fprintf(&sb, "Date: %s\n", b.Date)
	fmt.Fprintf(&sb, "Slots: %s\n", strings.Join(b.TimeSlots, ", "))
	if b.Package != "" {
		fmt.Fprintf(&sb, "Package: %s\n", b.Package)
	}
	fmt.Fprintf(&sb, "Client: %s (%s)\n", b.Name, b.Phone)
	if b.PaymentConfirmed {
		sb.WriteString("Payment: confirmed\n")
	}
	fmt.Fprintf(&sb, "ID: %s", b.ID)
	return sb.String()
}
