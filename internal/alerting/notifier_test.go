package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestSendGridNotifierSuccess(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v3/mail/send" {
			t.Fatalf("路径应为 /v3/mail/send, 实际 %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier := NewSendGridNotifier("key", "from@example.com", "fallback@example.com", srv.URL, time.Second, testLogger())
	result, err := notifier.Send(context.Background(), "hello", "user@example.com")
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if result.Status != StatusSent || result.Provider != "sendgrid" {
		t.Fatalf("结果不正确: %#v", result)
	}
	if gotAuth != "Bearer key" {
		t.Fatalf("Authorization 不正确: %s", gotAuth)
	}
	if !strings.Contains(mustJSON(t, gotBody), "user@example.com") {
		t.Fatalf("收件人应为显式 recipient: %#v", gotBody)
	}
}

func TestSendGridNotifierDefaultRecipient(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := make(map[string]any)
		_ = json.NewDecoder(r.Body).Decode(&raw)
		gotBody = mustJSON(t, raw)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	notifier := NewSendGridNotifier("key", "from@example.com", "fallback@example.com", srv.URL, time.Second, testLogger())
	if _, err := notifier.Send(context.Background(), "hello", ""); err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if !strings.Contains(gotBody, "fallback@example.com") {
		t.Fatalf("recipient 为空时应回退默认收件人: %s", gotBody)
	}
}

func TestSendGridNotifierStubWhenUnconfigured(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("未配置时不应发起请求")
	}))
	defer srv.Close()

	notifier := NewSendGridNotifier("", "", "", srv.URL, time.Second, testLogger())
	result, err := notifier.Send(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("stub 投递不应报错: %v", err)
	}
	if result.Status != StatusStubbedEmail {
		t.Fatalf("状态应为 %s, 实际 %s", StatusStubbedEmail, result.Status)
	}
}

func TestSendGridNotifierRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"bad from"}]}`))
	}))
	defer srv.Close()

	notifier := NewSendGridNotifier("key", "from@example.com", "to@example.com", srv.URL, time.Second, testLogger())
	result, err := notifier.Send(context.Background(), "hello", "")
	if err == nil {
		t.Fatal("提供方拒绝应报错")
	}
	if result.Status != StatusError {
		t.Fatalf("状态应为 %s, 实际 %s", StatusError, result.Status)
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Fatalf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "default-chat", srv.URL, time.Second, testLogger())
	result, err := notifier.Send(context.Background(), "hello", "chat-42")
	if err != nil {
		t.Fatalf("Send 应成功: %v", err)
	}
	if result.Status != StatusSent || result.Provider != "telegram" {
		t.Fatalf("结果不正确: %#v", result)
	}
	if received["chat_id"] != "chat-42" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	if received["text"] != "hello" {
		t.Fatalf("text 不正确: %#v", received)
	}
}

func TestTelegramNotifierStubWhenUnconfigured(t *testing.T) {
	notifier := NewTelegramNotifier("", "", "", time.Second, testLogger())
	result, err := notifier.Send(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("stub 投递不应报错: %v", err)
	}
	if result.Status != StatusStubbedMessaging {
		t.Fatalf("状态应为 %s, 实际 %s", StatusStubbedMessaging, result.Status)
	}
}

func TestTelegramNotifierOKFalse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if _, err := notifier.Send(context.Background(), "hello", ""); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func mustJSON(t *testing.T, value any) string {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	return string(raw)
}
