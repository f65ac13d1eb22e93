package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	slackmdgo "github.com/snormore/slackmd/slackgo"

	"github.com/wellspringlabs/wellspring/pool/pkg/event"
)

type NotifierConfig struct {
	Logger  *slog.Logger
	Client  *Client
	Bus     *event.Bus
	Channel string
}

func (cfg *NotifierConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("slack client is required")
	}
	if cfg.Bus == nil {
		return errors.New("event bus is required")
	}
	if cfg.Channel == "" {
		return errors.New("channel is required")
	}
	return nil
}

// Notifier subscribes to the ledger event bus and posts one Slack message
// per event. Posting is best effort: a failed post is logged and counted,
// never retried into the bus.
type Notifier struct {
	log *slog.Logger
	cfg NotifierConfig

	// postFn is replaced in tests.
	postFn func(ctx context.Context, text string) error
}

func NewNotifier(cfg NotifierConfig) (*Notifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Notifier{
		log: cfg.Logger,
		cfg: cfg,
	}
	n.postFn = func(ctx context.Context, text string) error {
		_, err := slackmdgo.Post(ctx, cfg.Client.API(), cfg.Channel, text, slackmdgo.WithRetry(nil))
		return err
	}
	return n, nil
}

// Start consumes the bus until ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	go func() {
		n.log.Info("slack: starting notifier", "channel", n.cfg.Channel)

		ch := n.cfg.Bus.Subscribe()
		defer n.cfg.Bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				n.notify(ctx, ev)
			}
		}
	}()
}

func (n *Notifier) notify(ctx context.Context, ev event.Event) {
	text := FormatEvent(ev)
	if text == "" {
		NotificationsTotal.WithLabelValues("dropped").Inc()
		return
	}

	if err := n.postFn(ctx, text); err != nil {
		n.log.Warn("slack: failed to post notification", "type", ev.Type, "error", err)
		NotificationsTotal.WithLabelValues("failed").Inc()
		return
	}
	NotificationsTotal.WithLabelValues("posted").Inc()
}

// FormatEvent renders one Slack markdown line for a ledger event. Unknown
// event types render as empty and are dropped.
func FormatEvent(ev event.Event) string {
	owner := ShortKey(ev.Owner.String())
	actor := ShortKey(ev.Actor.String())
	asset := ShortKey(ev.Asset.String())

	switch ev.Type {
	case event.TypePeriodCreated:
		return fmt.Sprintf(":hourglass_flowing_sand: `%s` opened period *%d*", owner, ev.Period)
	case event.TypePeriodConfigured:
		return fmt.Sprintf(":gear: `%s` set period *%d* target to %d `%s`", owner, ev.Period, ev.Amount, asset)
	case event.TypePeriodFunded:
		return fmt.Sprintf(":droplet: period *%d* of `%s` received its first funds", ev.Period, owner)
	case event.TypeContributed:
		return fmt.Sprintf(":inbox_tray: `%s` contributed %d `%s` to period *%d* of `%s`", actor, ev.Amount, asset, ev.Period, owner)
	case event.TypeTapped:
		return fmt.Sprintf(":outbox_tray: `%s` tapped %d `%s` from period *%d*", owner, ev.Amount, asset, ev.Period)
	case event.TypeClaimed:
		return fmt.Sprintf(":arrows_counterclockwise: `%s` claimed %d `%s` from period *%d* of `%s`", actor, ev.Amount, asset, ev.Period, owner)
	default:
		return ""
	}
}

// ShortKey abbreviates a base58 key for display.
func ShortKey(s string) string {
	if len(s) <= 12 {
		return s
	}
	return s[:4] + "..." + s[len(s)-4:]
}
