package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// 投递状态,逐条写入 alert_events.delivery_status。
const (
	StatusSent             = "sent"
	StatusStubbedEmail     = "stubbed-email"
	StatusStubbedMessaging = "stubbed-messaging"
	StatusError            = "error"
)

// Result 描述单次投递的结果。stub 投递也算完成,不算失败。
type Result struct {
	Status   string
	Provider string
}

// Notifier 定义告警通道。recipient 为空时使用通道默认收件人。
type Notifier interface {
	Send(ctx context.Context, message, recipient string) (Result, error)
}

// SendGridNotifier 通过 SendGrid REST API 发送邮件告警。凭证或收件人
// 缺失时降级为 stub:打印消息并返回 stubbed-email,不报错。
type SendGridNotifier struct {
	apiKey       string
	fromEmail    string
	defaultEmail string
	baseURL      string
	client       *http.Client
	logger       zerolog.Logger
}

// NewSendGridNotifier 构造邮件告警器。
func NewSendGridNotifier(apiKey, fromEmail, defaultEmail, baseURL string, timeout time.Duration, logger zerolog.Logger) *SendGridNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com"
	}

	return &SendGridNotifier{
		apiKey:       apiKey,
		fromEmail:    fromEmail,
		defaultEmail: defaultEmail,
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       &http.Client{Timeout: timeout},
		logger:       logger.With().Str("component", "alert_email").Logger(),
	}
}

// Send 调用 /v3/mail/send 发送纯文本邮件。
func (n *SendGridNotifier) Send(ctx context.Context, message, recipient string) (Result, error) {
	if recipient == "" {
		recipient = n.defaultEmail
	}
	if n.apiKey == "" || n.fromEmail == "" || recipient == "" {
		n.logger.Info().Str("message", message).Msg("邮件告警降级为 stub (SendGrid 未配置)")
		return Result{Status: StatusStubbedEmail, Provider: "stub"}, nil
	}

	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": recipient}}},
		},
		"from":    map[string]string{"email": n.fromEmail, "name": "Funding Intelligence"},
		"subject": "Funding alert triggered",
		"content": []map[string]string{{"type": "text/plain", "value": message}},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("marshal sendgrid payload: %w", err)
	}

	url := n.baseURL + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("create sendgrid request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("send sendgrid request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Result{Status: StatusError}, fmt.Errorf("sendgrid 响应码异常: %d %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	n.logger.Info().Str("recipient", recipient).Msg("告警已发送 (Email)")
	return Result{Status: StatusSent, Provider: "sendgrid"}, nil
}

// TelegramNotifier 通过 Telegram Bot API 推送消息告警。令牌或 chat_id
// 缺失时降级为 stub,返回 stubbed-messaging。
type TelegramNotifier struct {
	botToken      string
	defaultChatID string
	baseURL       string
	client        *http.Client
	logger        zerolog.Logger
}

// NewTelegramNotifier 构造消息告警器。
func NewTelegramNotifier(botToken, defaultChatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken:      botToken,
		defaultChatID: defaultChatID,
		baseURL:       strings.TrimRight(baseURL, "/"),
		client:        &http.Client{Timeout: timeout},
		logger:        logger.With().Str("component", "alert_messaging").Logger(),
	}
}

// Send 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Send(ctx context.Context, message, recipient string) (Result, error) {
	if recipient == "" {
		recipient = n.defaultChatID
	}
	if n.botToken == "" || recipient == "" {
		n.logger.Info().Str("message", message).Msg("消息告警降级为 stub (Telegram 未配置)")
		return Result{Status: StatusStubbedMessaging, Provider: "stub"}, nil
	}

	payload := map[string]string{
		"chat_id": recipient,
		"text":    message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{Status: StatusError}, fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{Status: StatusError}, fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var decoded struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err == nil {
		if !decoded.OK {
			return Result{Status: StatusError}, fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().Str("chat_id", recipient).Msg("告警已发送 (Telegram)")
	return Result{Status: StatusSent, Provider: "telegram"}, nil
}

var (
	_ Notifier = (*SendGridNotifier)(nil)
	_ Notifier = (*TelegramNotifier)(nil)
)
