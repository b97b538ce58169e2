package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingPolicyUnmarshal(t *testing.T) {
	t.Run("bare number decodes to flat", func(t *testing.T) {
		var p PricingPolicy
		require.NoError(t, json.Unmarshal([]byte(`50`), &p))
		require.NotNil(t, p.Flat)
		assert.Nil(t, p.Structured)
		assert.Equal(t, 50.0, p.Flat.Cost)
	})

	t.Run("object decodes to structured", func(t *testing.T) {
		data := `{"normal":50,"earlyBird":{"cost":40,"days":5},"breed":{"111":35},"optionalAdditionalCosts":[{"cost":5,"description":"parking"}]}`
		var p PricingPolicy
		require.NoError(t, json.Unmarshal([]byte(data), &p))
		assert.Nil(t, p.Flat)
		require.NotNil(t, p.Structured)
		assert.Equal(t, 50.0, p.Structured.Normal)
		require.NotNil(t, p.Structured.EarlyBird)
		assert.Equal(t, 5, p.Structured.EarlyBird.Days)
		assert.Equal(t, 35.0, p.Structured.Breed["111"])
		require.Len(t, p.Structured.OptionalAdditionalCosts, 1)
	})

	t.Run("invalid payload errors", func(t *testing.T) {
		var p PricingPolicy
		assert.Error(t, json.Unmarshal([]byte(`"fifty"`), &p))
	})

	t.Run("round trip", func(t *testing.T) {
		for _, src := range []string{`50`, `{"normal":50}`} {
			var p PricingPolicy
			require.NoError(t, json.Unmarshal([]byte(src), &p))
			out, err := json.Marshal(p)
			require.NoError(t, err)
			var again PricingPolicy
			require.NoError(t, json.Unmarshal(out, &again))
			assert.Equal(t, p, again, "source %s", src)
		}
	})
}

func TestReference(t *testing.T) {
	assert.Equal(t, "e1:r1", MakeReference("e1", "r1"))

	eventID, registrationID := SplitReference("e1:r1")
	assert.Equal(t, "e1", eventID)
	assert.Equal(t, "r1", registrationID)

	eventID, registrationID = SplitReference("e1:r1:extra")
	assert.Equal(t, "e1", eventID)
	assert.Equal(t, "r1:extra", registrationID)

	eventID, registrationID = SplitReference("nocolon")
	assert.Equal(t, "nocolon", eventID)
	assert.Empty(t, registrationID)
}

func TestTransactionStatusTerminal(t *testing.T) {
	assert.False(t, TransactionStatusNew.Terminal())
	assert.False(t, TransactionStatusPending.Terminal())
	assert.True(t, TransactionStatusOK.Terminal())
	assert.True(t, TransactionStatusFail.Terminal())
}

func TestRegistrationIsMember(t *testing.T) {
	assert.False(t, (&Registration{}).IsMember())
	assert.True(t, (&Registration{Handler: Person{Membership: true}}).IsMember())
	assert.True(t, (&Registration{Owner: Person{Membership: true}}).IsMember())
	assert.False(t, (&Registration{Payer: Person{Membership: true}}).IsMember(),
		"payer membership does not qualify")
}

func TestPaymentDescription(t *testing.T) {
	start := time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 6, 7, 0, 0, 0, 0, time.UTC)

	t.Run("full", func(t *testing.T) {
		e := DogEvent{EventType: "NOME-B", Name: "Spring Trial", Location: "Tampere", StartDate: &start, EndDate: &end}
		assert.Equal(t, "NOME-B 5.6.-7.6. Tampere Spring Trial", e.PaymentDescription())
	})

	t.Run("single day", func(t *testing.T) {
		e := DogEvent{EventType: "NOME-B", Location: "Tampere", StartDate: &start, EndDate: &start}
		assert.Equal(t, "NOME-B 5.6. Tampere", e.PaymentDescription())
	})

	t.Run("empty event", func(t *testing.T) {
		assert.Empty(t, (&DogEvent{}).PaymentDescription())
	})
}

func TestAppError(t *testing.T) {
	t.Run("message and status", func(t *testing.T) {
		err := ErrNotFound("registration", "r1")
		assert.Equal(t, 404, err.Status)
		assert.Equal(t, "NOT_FOUND", err.Code)
		assert.Contains(t, err.Error(), "registration r1 not found")
	})

	t.Run("unwrap exposes cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := ErrInternal("load registration", cause)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "boom")
	})

	t.Run("already paid is bodiless success", func(t *testing.T) {
		err := ErrAlreadyPaid()
		assert.Equal(t, 204, err.Status)
		assert.Equal(t, "ALREADY_PAID", err.Code)
	})

	t.Run("merchant config is precondition failure", func(t *testing.T) {
		assert.Equal(t, 412, ErrMerchantConfig("org1").Status)
		assert.Equal(t, 412, ErrUnsupportedRefund("multi-item").Status)
	})
}
