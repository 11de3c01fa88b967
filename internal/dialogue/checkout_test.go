package dialogue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medorder-assistant/internal/catalog"
	"github.com/wolfman30/medorder-assistant/internal/match"
	"github.com/wolfman30/medorder-assistant/internal/orders"
)

// toConfirmation fills the cart with 2 Panadol and 1 Brufen and walks the
// slots up to the confirmation prompt.
func (h *harness) toConfirmation(t *testing.T) SessionContext {
	t.Helper()
	reply := h.run(t,
		"add 2 panadol",
		"add 1 brufen",
		"checkout",
		"Ama Mensah",
		"0244 123 456",
		"12 Ring Road",
		"Accra",
	)
	_, ok := reply.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok, reply.Response)
	return reply.UpdatedContext
}

func TestCheckoutRequiresCart(t *testing.T) {
	h := newHarness(t)
	reply := h.run(t, "checkout")
	assert.Equal(t, OutcomeEmptyCart, reply.Outcome)
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
}

func TestCheckoutSlotsInOrder(t *testing.T) {
	h := newHarness(t)
	sc := h.run(t, "add 2 panadol").UpdatedContext

	steps := []struct {
		message string
		want    Slot
	}{
		{"checkout", SlotName},
		{"Ama Mensah", SlotPhone},
		{"0244 123 456", SlotAddress},
		{"12 Ring Road", SlotCity},
	}
	for _, step := range steps {
		reply := h.say(t, sc, step.message)
		pending, ok := reply.UpdatedContext.PendingOrder.(AwaitingCheckoutSlot)
		require.True(t, ok, "after %q: %s", step.message, reply.Response)
		assert.Equal(t, step.want, pending.Slot)
		sc = reply.UpdatedContext
	}

	reply := h.say(t, sc, "skip")
	pending, ok := reply.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok)
	assert.True(t, pending.Order.Customer.CitySkipped)
	assert.Equal(t, "0244123456", pending.Order.Customer.Phone)
	assert.Equal(t, catalog.Money(900), pending.Order.Total)
	assert.Contains(t, reply.Response, "Deliver to: Ama Mensah, 12 Ring Road")
	assert.Contains(t, reply.Response, "cash on delivery")
}

func TestSlotValuesThatLookLikeCommands(t *testing.T) {
	h := newHarness(t)
	sc := h.run(t, "add 2 panadol", "checkout").UpdatedContext

	for _, msg := range []string{"Price Mensah", "0244 123 456", "Exit 12 Ring Road", "Stop Junction"} {
		reply := h.say(t, sc, msg)
		assert.Equal(t, OutcomeOK, reply.Outcome, "%q: %s", msg, reply.Response)
		sc = reply.UpdatedContext
	}

	pending, ok := sc.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok)
	assert.Equal(t, "Price Mensah", pending.Order.Customer.Name)
	assert.Equal(t, "Exit 12 Ring Road", pending.Order.Customer.Address)
	assert.Equal(t, "Stop Junction", pending.Order.Customer.City)
	assert.Len(t, sc.Cart, 1)
}

func TestInvalidSlotValuesReprompt(t *testing.T) {
	h := newHarness(t)
	sc := h.run(t, "add 2 panadol", "checkout", "Ama Mensah").UpdatedContext

	for _, bad := range []string{"abc", "12", "call me maybe", "+1 (555) 12"} {
		reply := h.say(t, sc, bad)
		assert.Equal(t, OutcomeInvalidSlot, reply.Outcome, bad)
		pending, ok := reply.UpdatedContext.PendingOrder.(AwaitingCheckoutSlot)
		require.True(t, ok)
		assert.Equal(t, SlotPhone, pending.Slot)
		assert.Equal(t, "Ama Mensah", pending.Collected.Name)
	}
}

func TestFillSlot(t *testing.T) {
	tests := []struct {
		name    string
		slot    Slot
		value   string
		wantErr bool
		check   func(t *testing.T, c CustomerDetails)
	}{
		{name: "name", slot: SlotName, value: "  Ama   Mensah ", check: func(t *testing.T, c CustomerDetails) {
			assert.Equal(t, "Ama Mensah", c.Name)
		}},
		{name: "name too short", slot: SlotName, value: "A", wantErr: true},
		{name: "international phone", slot: SlotPhone, value: "+233 (24) 412-3456", check: func(t *testing.T, c CustomerDetails) {
			assert.Equal(t, "+233244123456", c.Phone)
		}},
		{name: "phone with letters", slot: SlotPhone, value: "0244 ABC 456", wantErr: true},
		{name: "phone too long", slot: SlotPhone, value: "1234567890123456", wantErr: true},
		{name: "address", slot: SlotAddress, value: "Plot 7, Osu", check: func(t *testing.T, c CustomerDetails) {
			assert.Equal(t, "Plot 7, Osu", c.Address)
		}},
		{name: "address digits only", slot: SlotAddress, value: "12345", wantErr: true},
		{name: "city", slot: SlotCity, value: "Kumasi", check: func(t *testing.T, c CustomerDetails) {
			assert.Equal(t, "Kumasi", c.City)
			assert.False(t, c.CitySkipped)
		}},
		{name: "city skipped", slot: SlotCity, value: "N/A", check: func(t *testing.T, c CustomerDetails) {
			assert.Empty(t, c.City)
			assert.True(t, c.CitySkipped)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, problem := fillSlot(CustomerDetails{}, tt.slot, tt.value)
			if tt.wantErr {
				assert.NotEmpty(t, problem)
				return
			}
			require.Empty(t, problem)
			tt.check(t, got)
		})
	}
}

func TestConfirmPlacesOrder(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)

	reply := h.say(t, sc, "yes")
	assert.Equal(t, ReplyTypeOrderReady, reply.Type)
	assert.Equal(t, OutcomeOK, reply.Outcome)
	require.NotNil(t, reply.OrderData)
	assert.NotEmpty(t, reply.OrderData.OrderID)
	assert.Equal(t, "Ama Mensah", reply.OrderData.CustomerName)
	assert.Equal(t, "Accra", reply.OrderData.DeliveryCity)
	assert.Equal(t, orders.DefaultPaymentMethod, reply.OrderData.PaymentMethod)
	assert.Equal(t, catalog.Money(1415), reply.OrderData.Total)
	assert.Len(t, reply.OrderData.OrderItems, 2)

	assert.Empty(t, reply.UpdatedContext.Cart)
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
	assert.Nil(t, reply.UpdatedContext.Customer)
	assert.Equal(t, reply.OrderData.OrderID, reply.UpdatedContext.LastOrderID)
	assert.Contains(t, reply.Response, reply.OrderData.OrderID)
	assert.Equal(t, 1, h.repo.Count())
}

func TestSameCartTwiceInOneSessionPlacesTwoOrders(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)

	first := h.say(t, sc, "yes")
	require.Equal(t, OutcomeOK, first.Outcome, first.Response)

	next := first.UpdatedContext
	for _, msg := range []string{"add 2 panadol", "add 1 brufen", "checkout", "Ama Mensah", "0244 123 456", "12 Ring Road", "Accra"} {
		next = h.say(t, next, msg).UpdatedContext
	}
	_, ok := next.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok)

	second := h.say(t, next, "yes")
	require.Equal(t, OutcomeOK, second.Outcome, second.Response)
	assert.NotEqual(t, first.OrderData.OrderID, second.OrderData.OrderID)
	assert.Equal(t, second.OrderData.OrderID, second.UpdatedContext.LastOrderID)
	assert.Equal(t, 2, h.repo.Count())

	// Replaying the first confirmation still maps to the first order.
	replay := h.say(t, sc, "yes")
	assert.Equal(t, first.OrderData.OrderID, replay.OrderData.OrderID)
	assert.Equal(t, 2, h.repo.Count())
}

func TestConfirmWithoutSubmitterHandsBackOrderData(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)

	index := match.NewIndex(match.NewHashEmbedder(0), match.IndexOptions{}, nil)
	_, err := index.Build(context.Background(), h.store)
	require.NoError(t, err)
	engine := NewEngine(Deps{Catalog: h.store, Matcher: match.NewMatcher(h.store, index, match.Options{}, nil)}, Options{Currency: "GHS"})

	reply, err := engine.HandleTurn(context.Background(), Request{Message: "yes", Context: sc})
	require.NoError(t, err)
	assert.Equal(t, ReplyTypeOrderReady, reply.Type)
	require.NotNil(t, reply.OrderData)
	assert.Empty(t, reply.OrderData.OrderID)
	assert.Contains(t, reply.Response, "GHS 14.15")
	assert.Equal(t, 0, h.repo.Count())
}

func TestDeclineConfirmationKeepsCart(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)

	reply := h.say(t, sc, "no")
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
	assert.Len(t, reply.UpdatedContext.Cart, 2)
	assert.Equal(t, 0, h.repo.Count())
}

func TestFinalValidationFailureKeepsCartAndDetails(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)
	require.NoError(t, h.store.SetStatus("brufen-400mg-30", catalog.StatusOutOfStock))

	reply := h.say(t, sc, "yes")
	assert.Equal(t, OutcomeUnavailable, reply.Outcome)
	assert.Empty(t, reply.Type)
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
	assert.Len(t, reply.UpdatedContext.Cart, 2)
	assert.Contains(t, reply.Response, "Brufen")
	assert.Contains(t, reply.Response, "out of stock")
	require.NotNil(t, reply.UpdatedContext.Customer)
	assert.Equal(t, "Ama Mensah", reply.UpdatedContext.Customer.Name)
	assert.Equal(t, 0, h.repo.Count())

	removed := h.say(t, reply.UpdatedContext, "remove brufen")
	again := h.say(t, removed.UpdatedContext, "checkout")
	pending, ok := again.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok, "saved details skip straight to confirmation")
	assert.Equal(t, catalog.Money(900), pending.Order.Total)
}

func TestShortStockAtConfirmation(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)
	require.NoError(t, h.store.SetStock("panadol-advance-24", 1))

	reply := h.say(t, sc, "yes")
	assert.Equal(t, OutcomeInsufficientStock, reply.Outcome)
	assert.Contains(t, reply.Response, "only 1 left")
}

func TestPriceChangeAtConfirmationRepresentsSummary(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)
	require.NoError(t, h.store.SetPrice("brufen-400mg-30", 600))

	reply := h.say(t, sc, "yes")
	assert.Equal(t, OutcomePriceChanged, reply.Outcome)
	assert.Contains(t, reply.Response, "now $6.00 (was $5.15)")
	pending, ok := reply.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok)
	assert.Equal(t, catalog.Money(1500), pending.Order.Total)
	assert.Equal(t, 0, h.repo.Count())

	placed := h.say(t, reply.UpdatedContext, "yes")
	assert.Equal(t, ReplyTypeOrderReady, placed.Type)
	assert.Equal(t, catalog.Money(1500), placed.OrderData.Total)
}

func TestRejectedOrderIsNotRetried(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)
	pending := sc.PendingOrder.(AwaitingConfirmation)
	pending.Order.Customer.Phone = ""
	sc.PendingOrder = pending

	reply := h.say(t, sc, "yes")
	assert.Equal(t, OutcomeSubmissionError, reply.Outcome)
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
	assert.Nil(t, reply.UpdatedContext.Customer)
	assert.Len(t, reply.UpdatedContext.Cart, 2)
	assert.Contains(t, reply.Response, `say "checkout"`)
	assert.NotContains(t, reply.Response, "try again")
	assert.Equal(t, 0, h.repo.Count())

	again := h.say(t, reply.UpdatedContext, "checkout")
	slot, ok := again.UpdatedContext.PendingOrder.(AwaitingCheckoutSlot)
	require.True(t, ok)
	assert.Equal(t, SlotName, slot.Slot)
}

func TestSubmissionErrorStaysInConfirmation(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)
	h.repo.SetFailure(errors.New("db down"))

	reply := h.say(t, sc, "yes")
	assert.Equal(t, OutcomeSubmissionError, reply.Outcome)
	_, ok := reply.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	assert.True(t, ok)
	assert.Len(t, reply.UpdatedContext.Cart, 2)
	assert.Empty(t, reply.UpdatedContext.LastOrderID)

	h.repo.SetFailure(nil)
	retried := h.say(t, reply.UpdatedContext, "yes")
	assert.Equal(t, ReplyTypeOrderReady, retried.Type)
}

func TestCancelDuringCheckoutSavesDetails(t *testing.T) {
	h := newHarness(t)
	sc := h.run(t, "add 2 panadol", "checkout", "Ama Mensah").UpdatedContext

	reply := h.say(t, sc, "cancel")
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
	require.NotNil(t, reply.UpdatedContext.Customer)
	assert.Equal(t, "Ama Mensah", reply.UpdatedContext.Customer.Name)

	resumed := h.say(t, reply.UpdatedContext, "checkout")
	pending, ok := resumed.UpdatedContext.PendingOrder.(AwaitingCheckoutSlot)
	require.True(t, ok)
	assert.Equal(t, SlotPhone, pending.Slot)
	assert.Nil(t, resumed.UpdatedContext.Customer)
}

func TestAddDuringConfirmationLeavesCheckout(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)

	reply := h.say(t, sc, "add 1 gaviscon")
	assert.Nil(t, reply.UpdatedContext.PendingOrder)
	assert.Len(t, reply.UpdatedContext.Cart, 3)
	require.NotNil(t, reply.UpdatedContext.Customer)

	again := h.say(t, reply.UpdatedContext, "checkout")
	pending, ok := again.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok)
	assert.Len(t, pending.Order.Items, 3)
}

func TestRemoveDuringConfirmationRedrafts(t *testing.T) {
	h := newHarness(t)
	sc := h.toConfirmation(t)

	reply := h.say(t, sc, "remove brufen")
	pending, ok := reply.UpdatedContext.PendingOrder.(AwaitingConfirmation)
	require.True(t, ok)
	assert.Equal(t, catalog.Money(900), pending.Order.Total)
	assert.Contains(t, reply.Response, "Please confirm your order")
}
