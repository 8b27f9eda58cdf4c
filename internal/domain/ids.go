package domain

import "github.com/google/uuid"

// idNamespace scopes the deterministic IDs below.
var idNamespace = uuid.MustParse("5b0c3f8e-7a0e-4a4f-9f39-0e6d1f0f2c11")

// SubscriptionID returns the stable ID for a (user, merchant key) pair so that
// every store assigns the same ID to the same upsert key.
func SubscriptionID(userID, merchantKey string) string {
	return uuid.NewSHA1(idNamespace, []byte("subscription:"+userID+"\x00"+merchantKey)).String()
}

// ZombieNudgeID returns the ID of the single nudge a subscription can ever
// receive for being flagged. Flagging is one-way, so the subscription ID alone
// identifies the flag event.
func ZombieNudgeID(subscriptionID string) string {
	return uuid.NewSHA1(idNamespace, []byte(string(NudgeKindZombieSubscription)+":"+subscriptionID)).String()
}
