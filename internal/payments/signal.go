package payments

import "strings"

var (
	referenceKeys = []string{"transactionId", "transaction_id", "id", "reference"}
	statusKeys    = []string{"status", "state"}
)

// ParseClientSignal normalizes the messages a provider widget posts to the
// page. It accepts a JSON object or a JSON string holding one, optionally
// nested under "data" or "paymentIntent". Messages with neither a reference
// nor a status are not payment messages and come back malformed.
func ParseClientSignal(p Provider, raw []byte) Outcome {
	fields, err := DecodeObject(raw)
	if err != nil {
		return Malformed(p, "not a payment message: %v", err)
	}

	for _, nested := range []string{"paymentIntent", "data"} {
		if inner, ok := fields[nested].(map[string]any); ok {
			fields = inner
			break
		}
	}

	out := Outcome{Provider: p, Reference: StringField(fields, referenceKeys...)}

	status, known := signalStatus(fields)
	switch {
	case known:
		out.Status = status
	case out.Reference != "":
		out.Status = StatusPending
	default:
		return Malformed(p, "message carries no reference and no status")
	}

	if out.Status == StatusSuccess && out.Reference == "" {
		return Malformed(p, "success message without a transaction reference")
	}

	if n, found, err := IntField(fields, "amount"); err == nil && found {
		out.AmountMinor = n
	}

	return out
}

func signalStatus(fields map[string]any) (Status, bool) {
	if _, hasErr := fields["error"]; hasErr && fields["error"] != nil {
		return StatusFailed, true
	}

	if b, ok := fields["success"].(bool); ok {
		if b {
			return StatusSuccess, true
		}
		return StatusFailed, true
	}

	s := strings.ToLower(StringField(fields, statusKeys...))
	switch s {
	case "":
		return "", false
	case "success", "succeeded", "successful", "completed", "approved":
		return StatusSuccess, true
	case "failed", "failure", "declined", "canceled", "cancelled", "payment_failed", "error":
		return StatusFailed, true
	default:
		return StatusPending, true
	}
}

