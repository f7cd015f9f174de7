package email

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/textproto"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MockEmailTTL is how long RedisSender keeps a captured message.
const MockEmailTTL = 5 * time.Minute

// MockEmailKey is where RedisSender stores the last message of a kind for
// a recipient.
func MockEmailKey(to, kind string) string {
	return fmt.Sprintf("mockemail:%s:%s", strings.ToLower(to), kind)
}

// RedisSender captures messages in Redis so integration tests can read them
// back through the service API.
type RedisSender struct {
	client *redis.Client
	from   string
	log    *zap.Logger
}

func NewRedisSender(client *redis.Client, from string, log *zap.Logger) *RedisSender {
	return &RedisSender{client: client, from: from, log: log}
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	kind := headerValue(rawMessage, HeaderNotificationKind)
	if kind == "" {
		kind = "unknown"
	}
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	data, err := json.Marshal(map[string]interface{}{
		"to":      strings.Join(to, ", "),
		"from":    s.from,
		"subject": subject,
		"body":    string(rawMessage),
		"kind":    kind,
		"sent_at": time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, kind)
	if err := s.client.Set(ctx, key, data, MockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}
	s.log.Debug("Mock email stored", zap.String("key", key), zap.String("subject", subject))
	return nil
}

func headerValue(rawMessage []byte, name string) string {
	r := textproto.NewReader(bufio.NewReader(bytes.NewReader(rawMessage)))
	header, err := r.ReadMIMEHeader()
	if err != nil && len(header) == 0 {
		return ""
	}
	return header.Get(name)
}
