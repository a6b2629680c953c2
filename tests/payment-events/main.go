package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/handler"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"

	"github.com/segmentio/kafka-go"
)

// Шлёт события платёжного процессора в топик. Без -auth генерирует
// несуществующие авторизации, такие сообщения уходят в DLQ.
func main() {
	brokers := flag.String("brokers", "localhost:9092", "kafka brokers")
	topic := flag.String("topic", "payment-events", "payment events topic")
	auths := flag.String("auth", "", "comma separated authorization ids")
	interval := flag.Duration("interval", 2*time.Second, "send interval")
	flag.Parse()

	writer := &kafka.Writer{
		Addr:  kafka.TCP(strings.Split(*brokers, ",")...),
		Topic: *topic,
	}
	defer writer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var ids []string
	if *auths != "" {
		ids = strings.Split(*auths, ",")
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ev := randomEvent(ids)
			data, _ := json.Marshal(ev)
			if err := writer.WriteMessages(ctx, kafka.Message{Key: []byte(ev.AuthorizationID), Value: data}); err != nil {
				log.Println("failed to send event:", err)
				continue
			}
			log.Println("event sent", ev.Type, ev.AuthorizationID)
		case <-ctx.Done():
			return
		}
	}
}

func randomEvent(ids []string) handler.PaymentEvent {
	authID := "pi_" + randomString(24)
	if len(ids) > 0 {
		authID = ids[rand.Intn(len(ids))]
	}

	eventType := payment.EventSucceeded
	if rand.Intn(4) == 0 {
		eventType = payment.EventFailed
	}
	return handler.PaymentEvent{Type: string(eventType), AuthorizationID: authID}
}

func randomString(n int) string {
	letters := []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rand.Intn(len(letters))]
	}
	return string(b)
}
