package billing

import (
	"testing"
	"time"

	"github.com/promptcraft/promptcraft/internal/models"
	"github.com/stripe/stripe-go/v76"
)

func TestMapStatus(t *testing.T) {
	cases := []struct {
		in   stripe.SubscriptionStatus
		want models.SubscriptionStatus
		ok   bool
	}{
		{stripe.SubscriptionStatusActive, models.SubscriptionStatusActive, true},
		{stripe.SubscriptionStatusTrialing, models.SubscriptionStatusActive, true},
		{stripe.SubscriptionStatusPastDue, models.SubscriptionStatusPastDue, true},
		{stripe.SubscriptionStatusUnpaid, models.SubscriptionStatusPastDue, true},
		{stripe.SubscriptionStatusIncomplete, models.SubscriptionStatusPastDue, true},
		{stripe.SubscriptionStatusCanceled, models.SubscriptionStatusCanceled, true},
		{stripe.SubscriptionStatusIncompleteExpired, models.SubscriptionStatusCanceled, true},
		{stripe.SubscriptionStatusPaused, models.SubscriptionStatusNone, false},
		{"", models.SubscriptionStatusNone, false},
	}
	for _, tc := range cases {
		got, ok := MapStatus(tc.in)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("MapStatus(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestValidTransition(t *testing.T) {
	const (
		none     = models.SubscriptionStatusNone
		active   = models.SubscriptionStatusActive
		pastDue  = models.SubscriptionStatusPastDue
		canceled = models.SubscriptionStatusCanceled
	)
	cases := []struct {
		from, to models.SubscriptionStatus
		want     bool
	}{
		{none, active, true},
		{none, pastDue, false},
		{none, canceled, false},
		{active, pastDue, true},
		{active, canceled, true},
		{active, active, true},
		{pastDue, active, true},
		{pastDue, canceled, true},
		{canceled, active, true},
		{canceled, pastDue, false},
		{canceled, canceled, true},
	}
	for _, tc := range cases {
		if got := ValidTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("ValidTransition(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestShouldResetOnRenewal(t *testing.T) {
	stored := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	later := stored.AddDate(0, 1, 0)
	earlier := stored.AddDate(0, -1, 0)

	cases := []struct {
		name   string
		policy RenewalPolicy
		stored *time.Time
		newEnd time.Time
		want   bool
	}{
		{"never policy", RenewalNever, &stored, later, false},
		{"period moved forward", RenewalOnPeriodChange, &stored, later, true},
		{"same period", RenewalOnPeriodChange, &stored, stored, false},
		{"period moved back", RenewalOnPeriodChange, &stored, earlier, false},
		{"no stored period", RenewalOnPeriodChange, nil, later, false},
		{"zero new end", RenewalOnPeriodChange, &stored, time.Time{}, false},
	}
	for _, tc := range cases {
		if got := ShouldResetOnRenewal(tc.policy, tc.stored, tc.newEnd); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestParseRenewalPolicy(t *testing.T) {
	if got := ParseRenewalPolicy(" Period-Change "); got != RenewalOnPeriodChange {
		t.Fatalf("expected period-change, got %q", got)
	}
	if got := ParseRenewalPolicy("sometimes"); got != RenewalNever {
		t.Fatalf("expected never for unknown value, got %q", got)
	}
}
