package payments

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
)

// Kind identifies a payment method.
type Kind string

const (
	KindCash        Kind = "cash"
	KindTransfer    Kind = "transfer"
	KindMercadoPago Kind = "mercadopago"
	KindCoordinar   Kind = "coordinar"
)

// Kinds lists every method in display order.
var Kinds = []Kind{KindMercadoPago, KindTransfer, KindCash, KindCoordinar}

var (
	ErrNoMethod       = errors.New("payments: no payment method selected")
	ErrUnknownMethod  = errors.New("payments: unknown payment method")
	ErrMethodDisabled = errors.New("payments: payment method not enabled for calendar")
	ErrProofRequired  = errors.New("payments: transfer requires a proof image")
)

// ParseKind normalizes a method name sent by the widget.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KindCash, KindTransfer, KindMercadoPago, KindCoordinar:
		return k, nil
	case "":
		return "", ErrNoMethod
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, raw)
}

// Method is the chosen payment method. Proof is only ever set for transfers;
// the zero value means nothing was chosen yet.
type Method struct {
	Kind  Kind             `json:"kind,omitempty"`
	Proof *attachments.Ref `json:"proof,omitempty"`
}

func Cash() Method        { return Method{Kind: KindCash} }
func MercadoPago() Method { return Method{Kind: KindMercadoPago} }
func Coordinar() Method   { return Method{Kind: KindCoordinar} }

// Transfer returns a transfer method, with or without its proof.
func Transfer(proof *attachments.Ref) Method {
	return Method{Kind: KindTransfer, Proof: proof}
}

// Selected reports whether a method was chosen.
func (m Method) Selected() bool { return m.Kind != "" }

// ConfirmEnabled reports whether the reservation can be confirmed with m.
// A transfer without a proof never can.
func ConfirmEnabled(m Method) bool {
	switch m.Kind {
	case KindTransfer:
		return m.Proof != nil && m.Proof.Key != ""
	case KindCash, KindMercadoPago, KindCoordinar:
		return true
	}
	return false
}

// Handlers holds one branch per method. Dispatch fails when the branch for
// the method at hand is missing.
type Handlers[T any] struct {
	Cash        func() (T, error)
	Transfer    func(proof attachments.Ref) (T, error)
	MercadoPago func() (T, error)
	Coordinar   func() (T, error)
}

// Dispatch runs the branch matching m.Kind.
func Dispatch[T any](m Method, h Handlers[T]) (T, error) {
	var zero T
	switch m.Kind {
	case KindCash:
		if h.Cash == nil {
			return zero, missingHandler(m.Kind)
		}
		return h.Cash()
	case KindTransfer:
		if h.Transfer == nil {
			return zero, missingHandler(m.Kind)
		}
		if m.Proof == nil || m.Proof.Key == "" {
			return zero, ErrProofRequired
		}
		return h.Transfer(*m.Proof)
	case KindMercadoPago:
		if h.MercadoPago == nil {
			return zero, missingHandler(m.Kind)
		}
		return h.MercadoPago()
	case KindCoordinar:
		if h.Coordinar == nil {
			return zero, missingHandler(m.Kind)
		}
		return h.Coordinar()
	case "":
		return zero, ErrNoMethod
	}
	return zero, fmt.Errorf("%w: %q", ErrUnknownMethod, m.Kind)
}

func missingHandler(k Kind) error {
	return fmt.Errorf("payments: no handler for %s", k)
}

// Options is the per-calendar payment configuration. A nil entry means the
// method is disabled.
type Options struct {
	Cash        *CashOption        `json:"cash,omitempty"`
	Transfer    *TransferOption    `json:"transfer,omitempty"`
	MercadoPago *MercadoPagoOption `json:"mercadopago,omitempty"`
	Coordinar   *CoordinarOption   `json:"coordinar,omitempty"`
}

type CashOption struct {
	Note string `json:"note,omitempty"`
}

// TransferOption carries the bank details shown to the visitor.
type TransferOption struct {
	Alias  string `json:"alias,omitempty"`
	CBU    string `json:"cbu,omitempty"`
	Holder string `json:"holder,omitempty"`
	Bank   string `json:"bank,omitempty"`
}

type MercadoPagoOption struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Title    string  `json:"title,omitempty"`
}

type CoordinarOption struct {
	Note string `json:"note,omitempty"`
}

// Allows reports whether k is enabled.
func (o Options) Allows(k Kind) bool {
	switch k {
	case KindCash:
		return o.Cash != nil
	case KindTransfer:
		return o.Transfer != nil
	case KindMercadoPago:
		return o.MercadoPago != nil
	case KindCoordinar:
		return o.Coordinar != nil
	}
	return false
}

// Enabled lists the enabled methods in display order.
func (o Options) Enabled() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if o.Allows(k) {
			out = append(out, k)
		}
	}
	return out
}

// OptionsFromBackend keeps only the methods the backend marks enabled.
func OptionsFromBackend(m zyta.PaymentMethods) Options {
	var o Options
	if m.Cash != nil && m.Cash.Enabled {
		o.Cash = &CashOption{Note: m.Cash.Note}
	}
	if m.Transfer != nil && m.Transfer.Enabled {
		o.Transfer = &TransferOption{
			Alias:  m.Transfer.Alias,
			CBU:    m.Transfer.CBU,
			Holder: m.Transfer.Holder,
			Bank:   m.Transfer.Bank,
		}
	}
	if m.MercadoPago != nil && m.MercadoPago.Enabled {
		currency := strings.ToUpper(strings.TrimSpace(m.MercadoPago.Currency))
		if currency == "" {
			currency = DefaultCurrency
		}
		o.MercadoPago = &MercadoPagoOption{
			Amount:   m.MercadoPago.Amount,
			Currency: currency,
			Title:    m.MercadoPago.Title,
		}
	}
	if m.Coordinar != nil && m.Coordinar.Enabled {
		o.Coordinar = &CoordinarOption{Note: m.Coordinar.Note}
	}
	return o
}
