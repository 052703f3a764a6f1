// Package notifier fans out booking outcomes to external chat endpoints
// over an OneBot-compatible HTTP API: at-least-once POST delivery with
// retry, to parallel group and user target lists.
//
// Grounded on original_source/sja_booking/notification.py
// (_format_day_label, _format_monitor_slot_line, the group/user target
// split) and on sethvargo/go-retry for the retry loop, matching
// internal/httpclient's use of the same library for the same reason:
// the teacher's go.mod already carries it indirectly and this package
// promotes it to a direct, exercised dependency.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/sethvargo/go-retry"

	"github.com/courtrace/agent/internal/bookingapi"
	"github.com/courtrace/agent/internal/model"
)

// Config tunes delivery targets and retry policy.
type Config struct {
	GroupURL       string
	UserURL        string
	Groups         []string
	Users          []string
	RetryCount     int
	RetryDelay     time.Duration
	SuccessTitle   string
	FailureTitle   string
	PaymentReminder string
}

// DefaultConfig matches spec.md §4.11's defaults.
func DefaultConfig() Config {
	return Config{RetryCount: 3, RetryDelay: 2 * time.Second}
}

// Notifier POSTs outcome messages to every configured group and user
// target, satisfying internal/monitor.Notifier.
type Notifier struct {
	cfg  Config
	http *http.Client
}

// New builds a Notifier posting with the given http.Client (nil selects
// a default client with a 10s timeout, matching the booking client's
// own default).
func New(cfg Config, client *http.Client) *Notifier {
	if cfg.RetryCount <= 0 {
		cfg.RetryCount = DefaultConfig().RetryCount
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Notifier{cfg: cfg, http: client}
}

// send posts {key: id, message} to url and retries until the reply's
// status field is "ok" or the retry budget is exhausted.
func (n *Notifier) send(ctx context.Context, url string, key string, id int64, message string) error {
	if url == "" {
		return nil
	}
	body, err := json.Marshal(map[string]any{key: id, "message": message})
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}

	backoff := retry.WithMaxRetries(uint64(n.cfg.RetryCount), retry.NewConstant(n.cfg.RetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.http.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("notifier: post to %s: %w", url, err))
		}
		defer resp.Body.Close()

		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return retry.RetryableError(err)
		}
		if resp.StatusCode != http.StatusOK {
			return retry.RetryableError(fmt.Errorf("notifier: %s returned HTTP %d", url, resp.StatusCode))
		}
		if gjson.GetBytes(buf.Bytes(), "status").String() != "ok" {
			return retry.RetryableError(fmt.Errorf("notifier: %s did not report status=ok: %s", url, buf.String()))
		}
		return nil
	})
}

// broadcast sends message to every configured group and user target,
// skipping any ID that does not parse as an integer, and returns the
// first error encountered (delivery to remaining targets is still
// attempted — at-least-once fan-out keeps going past a single failure).
func (n *Notifier) broadcast(ctx context.Context, message string) error {
	var firstErr error
	for _, g := range n.cfg.Groups {
		id, err := strconv.ParseInt(g, 10, 64)
		if err != nil {
			continue
		}
		if err := n.send(ctx, n.cfg.GroupURL, "group_id", id, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, u := range n.cfg.Users {
		id, err := strconv.ParseInt(u, 10, 64)
		if err != nil {
			continue
		}
		if err := n.send(ctx, n.cfg.UserURL, "user_id", id, message); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NotifyBookingResult sends the order-success/failure template for one
// placed order.
func (n *Notifier) NotifyBookingResult(ctx context.Context, intent model.OrderIntent, result bookingapi.OrderResult) error {
	return n.broadcast(ctx, n.formatOrderMessage(intent, result))
}

// NotifySlotsFound sends the monitor-hit template listing every newly
// discovered slot for a target.
func (n *Notifier) NotifySlotsFound(ctx context.Context, target model.BookingTarget, slots []model.Slot) error {
	return n.broadcast(ctx, formatMonitorHit(target, slots))
}

// formatOrderMessage matches _build_order_message's field order: a
// success/failure title, order id, user nickname, venue, field type,
// date, time range, a trailing payment reminder on success only, then
// the upstream's own result message.
func (n *Notifier) formatOrderMessage(intent model.OrderIntent, result bookingapi.OrderResult) string {
	var b strings.Builder
	if result.Success {
		title := n.cfg.SuccessTitle
		if title == "" {
			title = "预订成功"
		}
		fmt.Fprintf(&b, "%s\n", title)
		fmt.Fprintf(&b, "订单号: %s\n", result.OrderID)
	} else {
		title := n.cfg.FailureTitle
		if title == "" {
			title = "预订失败"
		}
		fmt.Fprintf(&b, "%s\n", title)
	}
	if intent.UserNickname != "" {
		fmt.Fprintf(&b, "用户: %s\n", intent.UserNickname)
	}
	if intent.VenueName != "" {
		fmt.Fprintf(&b, "场馆: %s\n", intent.VenueName)
	}
	fmt.Fprintf(&b, "场地: %s\n", intent.FieldType)
	fmt.Fprintf(&b, "日期: %s\n", intent.Date)
	fmt.Fprintf(&b, "时间: %s-%s\n", intent.Start, intent.End)
	if result.Success && n.cfg.PaymentReminder != "" {
		fmt.Fprintf(&b, "%s\n", n.cfg.PaymentReminder)
	}
	fmt.Fprintf(&b, "%s", result.Message)
	return b.String()
}

// formatMonitorHit renders a header line, the target and excluded user
// lists when set, then one bullet per slot in the shape
// "- {start}-{end} | {field_name} | 余{remain} ¥{price}". The bullet
// carries no date: a Slot holds no date and none is passed in.
func formatMonitorHit(target model.BookingTarget, slots []model.Slot) string {
	var b strings.Builder
	b.WriteString("发现可预订场地\n")
	if len(target.TargetUsers) > 0 {
		fmt.Fprintf(&b, "用户: %s\n", strings.Join(target.TargetUsers, ", "))
	}
	if len(target.ExcludeUsers) > 0 {
		fmt.Fprintf(&b, "排除: %s\n", strings.Join(target.ExcludeUsers, ", "))
	}
	for _, s := range slots {
		fmt.Fprintf(&b, "- %s-%s | %s | 余%d ¥%.0f\n", s.Start, s.End, s.FieldName, s.Remain, s.Price)
	}
	return b.String()
}

// FormatDayLabel renders a day offset the way the upstream bot commands
// do: 0/1/2 get the human-readable 今天/明天/后天 shorthand, anything
// else falls back to the literal date string.
//
// Grounded on original_source/sja_booking/notification.py's
// _format_day_label, supplemented here since spec.md's distillation
// only specifies the bullet-list line format, not the day-label
// convention used by Schedule job summaries.
func FormatDayLabel(date string, offset int) string {
	switch offset {
	case 0:
		return "今天"
	case 1:
		return "明天"
	case 2:
		return "后天"
	default:
		return date
	}
}
