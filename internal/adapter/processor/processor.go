// Package processor talks to the card processor. Wire objects follow the
// payment_intents shape: amounts in minor units, lower-case currency codes
// and string metadata.
package processor

import (
	"encoding/json"
	"fmt"
	"strings"

	"wallet-ledger/internal/core/ports"

	"github.com/shopspring/decimal"
)

// minorUnitExp is the decimal shift between a wallet amount and the
// processor's integer amount.
const minorUnitExp = 2

const (
	metaUserID         = "user_id"
	metaTargetCurrency = "target_currency"
)

// paymentIntent is the processor's charge object.
type paymentIntent struct {
	ID           string            `json:"id"`
	Object       string            `json:"object"`
	Amount       int64             `json:"amount"`
	Currency     string            `json:"currency"`
	Status       string            `json:"status"`
	ClientSecret string            `json:"client_secret"`
	Metadata     map[string]string `json:"metadata"`
}

func (pi *paymentIntent) toCharge() *ports.Charge {
	return &ports.Charge{
		ReferenceID:  pi.ID,
		Status:       pi.Status,
		Amount:       fromMinorUnits(pi.Amount),
		Currency:     strings.ToUpper(pi.Currency),
		OwnerID:      pi.Metadata[metaUserID],
		ClientSecret: pi.ClientSecret,
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(minorUnitExp).Round(0).IntPart()
}

func fromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -minorUnitExp)
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// charge objects carry the intent id separately from their own id.
type chargeObject struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	PaymentIntent string            `json:"payment_intent"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	Metadata      map[string]string `json:"metadata"`
}

// ParseEvent decodes a webhook body. Events whose data object is a charge or
// a payment intent come back with Charge set, keyed by the intent id so the
// ledger sees the same reference the client confirmed with.
func ParseEvent(payload []byte) (*ports.ProcessorEvent, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if env.ID == "" || env.Type == "" {
		return nil, fmt.Errorf("decode event: missing id or type")
	}

	evt := &ports.ProcessorEvent{ID: env.ID, Type: env.Type}
	if len(env.Data.Object) == 0 {
		return evt, nil
	}

	var kind struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(env.Data.Object, &kind); err != nil {
		return nil, fmt.Errorf("decode event object: %w", err)
	}

	switch kind.Object {
	case "payment_intent":
		var pi paymentIntent
		if err := json.Unmarshal(env.Data.Object, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		evt.Charge = pi.toCharge()
	case "charge":
		var ch chargeObject
		if err := json.Unmarshal(env.Data.Object, &ch); err != nil {
			return nil, fmt.Errorf("decode charge: %w", err)
		}
		ref := ch.PaymentIntent
		if ref == "" {
			ref = ch.ID
		}
		evt.Charge = &ports.Charge{
			ReferenceID: ref,
			Status:      ch.Status,
			Amount:      fromMinorUnits(ch.Amount),
			Currency:    strings.ToUpper(ch.Currency),
			OwnerID:     ch.Metadata[metaUserID],
		}
	}
	return evt, nil
}
