package payments

import (
	"errors"
	"testing"

	"github.com/wolfman30/zyta-booking-widget/internal/attachments"
	"github.com/wolfman30/zyta-booking-widget/internal/zyta"
)

func TestConfirmEnabled(t *testing.T) {
	proof := &attachments.Ref{Key: "widget/v/transfer-proof/p.png"}
	tests := []struct {
		name   string
		method Method
		want   bool
	}{
		{"nothing selected", Method{}, false},
		{"cash", Cash(), true},
		{"coordinar", Coordinar(), true},
		{"mercadopago", MercadoPago(), true},
		{"transfer without proof", Transfer(nil), false},
		{"transfer with empty proof", Transfer(&attachments.Ref{}), false},
		{"transfer with proof", Transfer(proof), true},
		{"unknown kind", Method{Kind: "bitcoin"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ConfirmEnabled(tt.method); got != tt.want {
				t.Fatalf("ConfirmEnabled(%+v) = %v, want %v", tt.method, got, tt.want)
			}
		})
	}
}

func TestDispatch_RoutesEachKind(t *testing.T) {
	h := Handlers[string]{
		Cash:        func() (string, error) { return "cash", nil },
		Transfer:    func(p attachments.Ref) (string, error) { return "transfer:" + p.Key, nil },
		MercadoPago: func() (string, error) { return "mp", nil },
		Coordinar:   func() (string, error) { return "later", nil },
	}

	cases := map[string]Method{
		"cash":       Cash(),
		"transfer:k": Transfer(&attachments.Ref{Key: "k"}),
		"mp":         MercadoPago(),
		"later":      Coordinar(),
	}
	for want, m := range cases {
		got, err := Dispatch(m, h)
		if err != nil {
			t.Fatalf("Dispatch(%s): %v", m.Kind, err)
		}
		if got != want {
			t.Fatalf("Dispatch(%s) = %q, want %q", m.Kind, got, want)
		}
	}
}

func TestDispatch_Errors(t *testing.T) {
	called := false
	h := Handlers[int]{
		Transfer: func(attachments.Ref) (int, error) { called = true; return 1, nil },
	}

	if _, err := Dispatch(Method{}, h); !errors.Is(err, ErrNoMethod) {
		t.Fatalf("expected ErrNoMethod, got %v", err)
	}
	if _, err := Dispatch(Method{Kind: "crypto"}, h); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
	if _, err := Dispatch(Transfer(nil), h); !errors.Is(err, ErrProofRequired) {
		t.Fatalf("expected ErrProofRequired, got %v", err)
	}
	if called {
		t.Fatal("transfer handler must not run without a proof")
	}
	if _, err := Dispatch(Cash(), h); err == nil {
		t.Fatal("expected error for missing cash handler")
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind(" MercadoPago "); err != nil || k != KindMercadoPago {
		t.Fatalf("ParseKind = %q, %v", k, err)
	}
	if _, err := ParseKind(""); !errors.Is(err, ErrNoMethod) {
		t.Fatalf("expected ErrNoMethod, got %v", err)
	}
	if _, err := ParseKind("paypal"); !errors.Is(err, ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestOptionsFromBackend(t *testing.T) {
	opts := OptionsFromBackend(zyta.PaymentMethods{
		Cash:        &zyta.CashSettings{Enabled: true, Note: "en el estudio"},
		Transfer:    &zyta.TransferSettings{Enabled: false, Alias: "ignored"},
		MercadoPago: &zyta.MercadoPagoSettings{Enabled: true, Amount: 15000, Currency: "ars"},
	})

	if !opts.Allows(KindCash) || opts.Cash.Note != "en el estudio" {
		t.Fatalf("expected cash enabled with note, got %+v", opts.Cash)
	}
	if opts.Allows(KindTransfer) {
		t.Fatal("disabled transfer must not be offered")
	}
	if opts.Allows(KindCoordinar) {
		t.Fatal("missing coordinar block must not be offered")
	}
	if opts.MercadoPago.Currency != "ARS" || opts.MercadoPago.Amount != 15000 {
		t.Fatalf("unexpected mercadopago option: %+v", opts.MercadoPago)
	}

	enabled := opts.Enabled()
	if len(enabled) != 2 || enabled[0] != KindMercadoPago || enabled[1] != KindCash {
		t.Fatalf("unexpected enabled order: %v", enabled)
	}
}

func TestUseSandboxInitPoint(t *testing.T) {
	tests := []struct {
		mode       string
		production bool
		want       bool
	}{
		{"", false, true},
		{"auto", true, false},
		{"sandbox", true, true},
		{"LIVE", false, false},
		{"production", false, false},
	}
	for _, tt := range tests {
		if got := UseSandboxInitPoint(tt.mode, tt.production); got != tt.want {
			t.Fatalf("UseSandboxInitPoint(%q, %v) = %v, want %v", tt.mode, tt.production, got, tt.want)
		}
	}
}
