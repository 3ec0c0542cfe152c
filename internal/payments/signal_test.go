package payments

import "testing"

func TestParseClientSignal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantStatus Status
		wantRef    string
	}{
		{name: "transactionId_with_status", raw: `{"transactionId":"tx-1","status":"SUCCESS"}`, wantStatus: StatusSuccess, wantRef: "tx-1"},
		{name: "snake_case_with_state", raw: `{"transaction_id":"tx-2","state":"success"}`, wantStatus: StatusSuccess, wantRef: "tx-2"},
		{name: "id_with_success_flag", raw: `{"id":"tx-3","success":true}`, wantStatus: StatusSuccess, wantRef: "tx-3"},
		{name: "numeric_id", raw: `{"id":12345,"status":"SUCCESS"}`, wantStatus: StatusSuccess, wantRef: "12345"},
		{name: "json_string_wrapped", raw: `"{\"transactionId\":\"tx-4\",\"status\":\"SUCCESS\"}"`, wantStatus: StatusSuccess, wantRef: "tx-4"},
		{name: "nested_payment_intent", raw: `{"paymentIntent":{"id":"pi_1","status":"succeeded"}}`, wantStatus: StatusSuccess, wantRef: "pi_1"},
		{name: "reference_only_is_pending", raw: `{"transactionId":"tx-5"}`, wantStatus: StatusPending, wantRef: "tx-5"},
		{name: "processing_is_pending", raw: `{"id":"pi_2","status":"processing"}`, wantStatus: StatusPending, wantRef: "pi_2"},
		{name: "failed_status", raw: `{"transactionId":"tx-6","status":"FAILED"}`, wantStatus: StatusFailed, wantRef: "tx-6"},
		{name: "failed_without_reference", raw: `{"success":false}`, wantStatus: StatusFailed},
		{name: "error_object", raw: `{"error":{"message":"card declined"}}`, wantStatus: StatusFailed},
		{name: "success_without_reference", raw: `{"status":"SUCCESS"}`, wantStatus: StatusMalformed},
		{name: "unrelated_message", raw: `{"type":"resize","height":400}`, wantStatus: StatusMalformed},
		{name: "not_json", raw: `widget-ready`, wantStatus: StatusMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ParseClientSignal(MobileMoney, []byte(tt.raw))
			if got.Status != tt.wantStatus {
				t.Fatalf("status: got %s (%s), want %s", got.Status, got.Reason, tt.wantStatus)
			}
			if tt.wantStatus != StatusMalformed && got.Reference != tt.wantRef {
				t.Fatalf("reference: got %q, want %q", got.Reference, tt.wantRef)
			}
			if got.Provider != MobileMoney {
				t.Fatalf("provider: got %q", got.Provider)
			}
		})
	}
}
