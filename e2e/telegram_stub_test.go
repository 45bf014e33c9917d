//go:build e2e
// +build e2e

package e2e

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

const telegramStubAddr = "0.0.0.0:38086"

// telegramStub stands in for the Bot API and records outgoing messages.
type telegramStub struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newTelegramStub() *telegramStub {
	return &telegramStub{messages: map[string][]string{}}
}

func (s *telegramStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Payments","username":"payments_e2e_bot"}}`))
	case "sendMessage":
		s.mu.Lock()
		chatID := r.PostForm.Get("chat_id")
		s.messages[chatID] = append(s.messages[chatID], r.PostForm.Get("text"))
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":1714550000,"chat":{"id":1,"type":"private"},"text":"ok"}}`))
	case "getChatMember":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"status":"member","user":{"id":1,"is_bot":false,"first_name":"E2E"}}}`))
	case "createChatInviteLink":
		_, _ = w.Write([]byte(`{"ok":true,"result":{"invite_link":"https://t.me/+e2e","creator":{"id":1,"is_bot":true,"first_name":"Payments"},"creates_join_request":false,"is_primary":false,"is_revoked":false}}`))
	default:
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

// waitForMessage polls until a message containing substr reaches chatID.
func (s *telegramStub) waitForMessage(chatID, substr string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, text := range s.messages[chatID] {
			if strings.Contains(text, substr) {
				s.mu.Unlock()
				return true
			}
		}
		s.mu.Unlock()
		time.Sleep(100 * time.Millisecond)
	}
	return false
}
