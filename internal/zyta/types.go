// Package zyta contains the REST client for the Zyta booking backend and its
// wire types. The backend owns calendars, appointments, and payment
// preferences; this package only shapes requests and decodes responses.
package zyta

import "time"

// Calendar is the public calendar configuration as the backend nests it.
type Calendar struct {
	Slug            string          `json:"slug"`
	Name            string          `json:"name,omitempty"`
	Timezone        string          `json:"timezone"`
	Availability    Availability    `json:"availability"`
	Payments        PaymentSettings `json:"payments"`
	BookingSettings BookingSettings `json:"bookingSettings"`
}

// Availability describes when the calendar accepts bookings.
// Weekdays are numbered 0 (Sunday) to 6 (Saturday); TimeRanges is keyed by
// the weekday number rendered as a string.
type Availability struct {
	EnabledDays        []int                  `json:"enabledDays"`
	SlotMinutes        int                    `json:"slotMinutes"`
	BufferMinutes      int                    `json:"bufferMinutes"`
	TimeRanges         map[string][]TimeRange `json:"timeRanges"`
	Overrides          []DateOverride         `json:"overrides,omitempty"`
	MaxAdvanceDays     int                    `json:"maxAdvanceDays,omitempty"`
	AvailableDurations []int                  `json:"availableDurations,omitempty"`
	Occupied           []Interval             `json:"occupied,omitempty"`
}

// TimeRange is a "15:04" start/end pair.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// DateOverride disables a single date or replaces its ranges.
type DateOverride struct {
	Date     string      `json:"date"`
	Disabled bool        `json:"disabled,omitempty"`
	Ranges   []TimeRange `json:"ranges,omitempty"`
}

// Interval is an absolute busy period.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PaymentSettings wraps the per-method configuration.
type PaymentSettings struct {
	Methods PaymentMethods `json:"methods"`
}

// PaymentMethods holds one optional block per supported method.
type PaymentMethods struct {
	Cash        *CashSettings        `json:"cash,omitempty"`
	Transfer    *TransferSettings    `json:"transfer,omitempty"`
	MercadoPago *MercadoPagoSettings `json:"mercadopago,omitempty"`
	Coordinar   *CoordinarSettings   `json:"coordinar,omitempty"`
}

type CashSettings struct {
	Enabled bool   `json:"enabled"`
	Note    string `json:"note,omitempty"`
}

type TransferSettings struct {
	Enabled bool   `json:"enabled"`
	Alias   string `json:"alias,omitempty"`
	CBU     string `json:"cbu,omitempty"`
	Holder  string `json:"holder,omitempty"`
	Bank    string `json:"bank,omitempty"`
}

type MercadoPagoSettings struct {
	Enabled  bool    `json:"enabled"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
	Title    string  `json:"title,omitempty"`
}

type CoordinarSettings struct {
	Enabled bool   `json:"enabled"`
	Note    string `json:"note,omitempty"`
}

// BookingSettings configures the contact form and the evaluation gate.
type BookingSettings struct {
	ConfirmCaseBeforePayment bool          `json:"confirmCaseBeforePayment"`
	FormFields               FormFields    `json:"formFields"`
	CustomFields             []CustomField `json:"customFields,omitempty"`
}

// FormFields toggles the optional built-in contact fields.
type FormFields struct {
	Phone      FieldSetting `json:"phone"`
	Notes      FieldSetting `json:"notes"`
	Attachment FieldSetting `json:"attachment"`
}

type FieldSetting struct {
	Enabled  bool `json:"enabled"`
	Required bool `json:"required"`
}

// CustomField is a calendar-defined extra form input.
type CustomField struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Type     string   `json:"type,omitempty"`
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// AppointmentRequest is the body of POST /appointments/public/{slug}.
type AppointmentRequest struct {
	Name               string            `json:"name"`
	Email              string            `json:"email"`
	Phone              string            `json:"phone,omitempty"`
	Notes              string            `json:"notes,omitempty"`
	CustomFields       map[string]string `json:"customFields,omitempty"`
	StartTime          string            `json:"startTime"`
	PaymentMethod      string            `json:"paymentMethod"`
	DurationMinutes    int               `json:"durationMinutes,omitempty"`
	TransferProofKey   string            `json:"transferProofKey,omitempty"`
	AttachmentKey      string            `json:"attachmentKey,omitempty"`
	RequiresEvaluation bool              `json:"requiresEvaluation,omitempty"`
}

// AppointmentRecord is the backend's view of a created appointment.
type AppointmentRecord struct {
	ID            string    `json:"id"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	Status        string    `json:"status"`
	PaymentMethod string    `json:"paymentMethod"`
}

// PreferenceRequest asks the backend for a MercadoPago checkout preference.
type PreferenceRequest struct {
	Amount            float64  `json:"amount"`
	Currency          string   `json:"currency"`
	Title             string   `json:"title,omitempty"`
	ExternalReference string   `json:"externalReference,omitempty"`
	BackURLs          BackURLs `json:"backUrls"`
}

// BackURLs are where the provider sends the browser after checkout.
type BackURLs struct {
	Success string `json:"success"`
	Pending string `json:"pending"`
	Failure string `json:"failure"`
}

// PreferenceResponse carries the provider checkout URLs.
type PreferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}
