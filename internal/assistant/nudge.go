package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/saveplus/saveplus/internal/domain"
	"github.com/saveplus/saveplus/internal/logger"
	"github.com/saveplus/saveplus/internal/zombie"
	"github.com/shopspring/decimal"
)

const (
	maxBodyLength     = 280
	defaultGenTimeout = 10 * time.Second
)

// NudgeComposer writes the title and body of zombie subscription nudges.
type NudgeComposer struct {
	gen     Generator
	timeout time.Duration
}

// NewNudgeComposer returns a composer. gen may be nil, in which case only
// the template is used.
func NewNudgeComposer(gen Generator) *NudgeComposer {
	return &NudgeComposer{gen: gen, timeout: defaultGenTimeout}
}

// ComposeZombieNudge returns copy for a subscription that was just flagged.
func (c *NudgeComposer) ComposeZombieNudge(ctx context.Context, sub domain.Subscription, in zombie.Inputs) (string, string) {
	title := fmt.Sprintf("Still using %s?", sub.Merchant)
	body := TemplateBody(sub, in)

	if c == nil || c.gen == nil {
		return title, body
	}

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.gen.Generate(genCtx, nudgePrompt(sub, in))
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("subscription_id", sub.SubscriptionID).
			Msg("nudge generation failed, using template")
		return title, body
	}

	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxBodyLength {
		return title, body
	}
	return title, text
}

// TemplateBody is the deterministic nudge body.
func TemplateBody(sub domain.Subscription, in zombie.Inputs) string {
	monthly := sub.MonthlyAmount().Round(2)
	yearly := monthly.Mul(decimal.NewFromInt(12)).Round(2)

	idle := fmt.Sprintf("in %d days", in.DaysSinceLastUsage)
	if in.DaysSinceLastUsage >= zombie.MaxIdleDays {
		idle = fmt.Sprintf("in over %d days", zombie.MaxIdleDays)
	}

	return fmt.Sprintf("You pay about $%s a month for %s but haven't used it %s. Cancelling would save $%s a year.",
		monthly.StringFixed(2), sub.Merchant, idle, yearly.StringFixed(2))
}

func nudgePrompt(sub domain.Subscription, in zombie.Inputs) string {
	var b strings.Builder
	b.WriteString("You write short, friendly notifications for a personal finance app.\n\n")
	b.WriteString("Write ONE sentence (max 200 characters) encouraging the user to review a subscription they seem not to use.\n")
	b.WriteString("Do not use Markdown, emojis or quotes. Do not invent numbers.\n\n")
	fmt.Fprintf(&b, "Merchant: %s\n", sub.Merchant)
	fmt.Fprintf(&b, "Billing: %s, %s per charge\n", sub.Frequency, sub.AverageAmount().StringFixed(2))
	fmt.Fprintf(&b, "Monthly cost: %s\n", sub.MonthlyAmount().StringFixed(2))
	fmt.Fprintf(&b, "Days since last use: %d\n", in.DaysSinceLastUsage)
	fmt.Fprintf(&b, "Uses in the last %d days: %d\n", zombie.UsageWindowDays, in.UsageCount)
	return b.String()
}
