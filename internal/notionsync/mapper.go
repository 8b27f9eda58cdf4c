package notionsync

import (
	"time"

	"github.com/jomei/notionapi"
	"github.com/saveplus/saveplus/internal/domain"
)

// Property names in the Subscriptions database.
const (
	PropSubscriptionID = "Subscription ID"
	PropUserID         = "User ID"
	PropMerchant       = "Merchant"
	PropFrequency      = "Frequency"
	PropAmount         = "Amount"
	PropMonthlyCost    = "Monthly Cost"
	PropConfidence     = "Confidence"
	PropStatus         = "Status"
	PropNextCharge     = "Next Charge"
	PropLastCharge     = "Last Charge"
	PropZombieScore    = "Zombie Score"
	PropZombie         = "Zombie"
	PropFlaggedAt      = "Flagged At"
)

// SubscriptionToNotionProperties converts a subscription to page properties.
// The title is the subscription ID so pages can be matched on later syncs.
func SubscriptionToNotionProperties(sub domain.Subscription) notionapi.Properties {
	amount, _ := sub.AverageAmount().Float64()
	monthly, _ := sub.MonthlyAmount().Round(2).Float64()

	props := notionapi.Properties{
		PropSubscriptionID: notionapi.TitleProperty{
			Title: richText(sub.SubscriptionID),
		},
		PropUserID: notionapi.RichTextProperty{
			RichText: richText(sub.UserID),
		},
		PropMerchant: notionapi.RichTextProperty{
			RichText: richText(sub.Merchant),
		},
		PropFrequency: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(sub.Frequency)},
		},
		PropAmount: notionapi.NumberProperty{
			Number: amount,
		},
		PropMonthlyCost: notionapi.NumberProperty{
			Number: monthly,
		},
		PropConfidence: notionapi.NumberProperty{
			Number: sub.Confidence,
		},
		PropStatus: notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(sub.Status)},
		},
		PropZombie: notionapi.CheckboxProperty{
			Checkbox: sub.Zombie.IsFlagged(),
		},
	}

	if !sub.NextExpectedDate.IsZero() {
		props[PropNextCharge] = dateProperty(sub.NextExpectedDate)
	}
	if !sub.LastChargeDate.IsZero() {
		props[PropLastCharge] = dateProperty(sub.LastChargeDate)
	}
	if sub.ZombieScore != nil {
		props[PropZombieScore] = notionapi.NumberProperty{Number: *sub.ZombieScore}
	}
	if at, ok := sub.Zombie.At(); ok {
		props[PropFlaggedAt] = dateProperty(at)
	}

	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(domain.DateOnly(t))
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{Start: &d},
	}
}

// extractSubscriptionID reads the title of a page returned by the API.
// Returns empty string if not found.
func extractSubscriptionID(page notionapi.Page) string {
	if prop, ok := page.Properties[PropSubscriptionID]; ok {
		if title, ok := prop.(*notionapi.TitleProperty); ok && len(title.Title) > 0 {
			return title.Title[0].PlainText
		}
	}
	return ""
}
