package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"funding-intel/internal/storage"
)

// Store is the persistence surface dispatch needs.
type Store interface {
	storage.OpportunityStore
	storage.AlertStore
	storage.UserSettingsStore
}

// Dispatcher evaluates active alert rules against the current
// opportunity table and routes fired alerts to the channel notifiers.
type Dispatcher struct {
	store     Store
	notifiers map[string]Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewDispatcher constructs the dispatcher. email and messaging serve
// the corresponding rule channels.
func NewDispatcher(store Store, email, messaging Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store: store,
		notifiers: map[string]Notifier{
			storage.ChannelEmail:     email,
			storage.ChannelMessaging: messaging,
		},
		logger: logger.With().Str("component", "alerting").Logger(),
		now:    time.Now,
	}
}

// Run processes every active rule once. Per-rule failures are logged,
// recorded as error events, and never stop the loop; Run only fails
// when the rule list itself cannot be loaded.
func (d *Dispatcher) Run(ctx context.Context) error {
	rules, err := d.store.ListActiveAlertRules(ctx)
	if err != nil {
		return fmt.Errorf("load active alert rules: %w", err)
	}

	if len(rules) == 0 {
		d.logger.Info().Msg("no active alert rules to process")
		return nil
	}

	// 同一轮内相同 user_id 只查一次 user_settings。
	settingsCache := make(map[string]*storage.UserSettings)
	for _, rule := range rules {
		d.processRule(ctx, rule, settingsCache)
	}
	return nil
}

func (d *Dispatcher) processRule(ctx context.Context, rule storage.AlertRule, settingsCache map[string]*storage.UserSettings) {
	opportunity, err := d.store.TopOpportunity(ctx, rule.Pair, rule.Exchange)
	if err != nil {
		d.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("opportunity lookup failed")
		d.recordEvent(ctx, storage.AlertEvent{
			AlertID:        rule.ID,
			Channel:        rule.Channel,
			DeliveryStatus: StatusError,
			Message:        err.Error(),
		})
		return
	}
	if opportunity == nil {
		d.logger.Info().Int64("alert_id", rule.ID).Msg("no opportunity matches rule filters")
		return
	}

	// 阈值比较使用原始费率,不使用净费率。
	if opportunity.CurrentFundingRate.LessThan(rule.ThresholdRate) {
		return
	}

	notifier, ok := d.notifiers[rule.Channel]
	if !ok || notifier == nil {
		d.logger.Warn().Int64("alert_id", rule.ID).Str("channel", rule.Channel).Msg("unsupported channel, skipping")
		return
	}

	message := formatAlertMessage(rule, *opportunity)
	recipient := d.resolveRecipient(ctx, rule, settingsCache)

	result, err := notifier.Send(ctx, message, recipient)
	if err != nil {
		d.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("delivery failed")
		d.recordEvent(ctx, storage.AlertEvent{
			AlertID:        rule.ID,
			Channel:        rule.Channel,
			DeliveryStatus: StatusError,
			Message:        err.Error(),
		})
		return
	}

	d.recordEvent(ctx, storage.AlertEvent{
		AlertID:        rule.ID,
		Channel:        rule.Channel,
		DeliveryStatus: result.Status,
		Message:        message,
		Payload: map[string]any{
			"exchange":  opportunity.Exchange,
			"pair":      opportunity.Pair,
			"provider":  providerOrStub(result),
			"recipient": recipient,
		},
	})

	if err := d.store.MarkAlertTriggered(ctx, rule.ID, d.now().UTC()); err != nil {
		d.logger.Error().Err(err).Int64("alert_id", rule.ID).Msg("failed to update last_triggered_at")
	}

	d.logger.Info().Int64("alert_id", rule.ID).
		Str("pair", opportunity.Pair).
		Str("status", result.Status).
		Msg("alert dispatched")
}

// resolveRecipient 按 user_id 解析收件人。查不到或未配置时返回空串,
// 由通道默认收件人兜底。
func (d *Dispatcher) resolveRecipient(ctx context.Context, rule storage.AlertRule, settingsCache map[string]*storage.UserSettings) string {
	if rule.UserID == "" {
		return ""
	}

	settings, cached := settingsCache[rule.UserID]
	if !cached {
		loaded, err := d.store.GetUserSettings(ctx, rule.UserID)
		if err != nil {
			d.logger.Warn().Err(err).Str("user_id", rule.UserID).Msg("user settings lookup failed")
		}
		settings = loaded
		settingsCache[rule.UserID] = settings
	}
	if settings == nil {
		return ""
	}

	switch rule.Channel {
	case storage.ChannelEmail:
		return settings.Email
	case storage.ChannelMessaging:
		return settings.TelegramChatID
	default:
		return ""
	}
}

func (d *Dispatcher) recordEvent(ctx context.Context, event storage.AlertEvent) {
	if err := d.store.InsertAlertEvent(ctx, event); err != nil {
		d.logger.Error().Err(err).Int64("alert_id", event.AlertID).Msg("failed to record alert event")
	}
}

func formatAlertMessage(rule storage.AlertRule, opportunity storage.Opportunity) string {
	return fmt.Sprintf("Funding Alert:\n%s on %s is paying %s%% (net %s%%).\nThreshold: %s%%\nUpdated at: %s",
		opportunity.Pair,
		opportunity.Exchange,
		toPercent(opportunity.CurrentFundingRate),
		toPercent(opportunity.NetRateAfterFees),
		toPercent(rule.ThresholdRate),
		opportunity.UpdatedAt.UTC().Format(time.RFC3339))
}

func toPercent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(3)
}

func providerOrStub(result Result) string {
	if result.Provider == "" {
		return "stub"
	}
	return result.Provider
}
