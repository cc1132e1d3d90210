package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubscription_Transition(t *testing.T) {
	created := *date("2024-01-01")
	now := *date("2024-06-15")

	t.Run("keeps stored fields when patch is empty", func(t *testing.T) {
		sub := NewSubscription(uuid.New(), SubscriptionActive, created)
		sub.Plan = "pro"
		sub.BillingCycle = "yearly"
		sub.DodoCustomerID = "cus_1"
		sub.TrialEndsAt = date("2024-02-01")
		sub.TrialActivated = true

		sub.Transition(SubscriptionCancelled, date("2024-12-31"), Patch{}, now)

		assert.Equal(t, SubscriptionCancelled, sub.Status)
		assert.Equal(t, date("2024-12-31"), sub.EndDate)
		assert.Equal(t, "pro", sub.Plan)
		assert.Equal(t, "yearly", sub.BillingCycle)
		assert.Equal(t, "cus_1", sub.DodoCustomerID)
		assert.Equal(t, date("2024-02-01"), sub.TrialEndsAt)
		assert.True(t, sub.TrialActivated)
		assert.Equal(t, created, sub.CreatedAt)
		assert.Equal(t, now, sub.UpdatedAt)
	})

	t.Run("overwrites supplied fields", func(t *testing.T) {
		sub := NewSubscription(uuid.New(), SubscriptionTrialing, created)
		activated := false

		sub.Transition(SubscriptionActive, nil, Patch{
			Plan:               "pro",
			BillingCycle:       "monthly",
			Email:              "a@b.co",
			DodoCustomerID:     "cus_2",
			DodoSubscriptionID: "sub_2",
			TrialGraceEndsAt:   date("2024-06-20"),
			TrialActivated:     &activated,
		}, now)

		assert.Equal(t, "pro", sub.Plan)
		assert.Equal(t, "monthly", sub.BillingCycle)
		assert.Equal(t, "a@b.co", sub.Email)
		assert.Equal(t, "cus_2", sub.DodoCustomerID)
		assert.Equal(t, "sub_2", sub.DodoSubscriptionID)
		assert.Equal(t, date("2024-06-20"), sub.TrialGraceEndsAt)
		assert.False(t, sub.TrialActivated)
		assert.Nil(t, sub.EndDate)
	})

	t.Run("blank stored plan falls back to default", func(t *testing.T) {
		sub := &Subscription{UserID: uuid.New()}
		sub.Transition(SubscriptionActive, nil, Patch{}, time.Now())
		assert.Equal(t, DefaultPlan, sub.Plan)
	})
}
