//go:build e2e

package e2etests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"
)

const (
	timeout   = 5 * time.Second
	waitReady = 20 * time.Second

	// Accounts seeded by the migrator in DEV mode.
	newUser   = "00000000-0000-0000-0000-000000000001"
	emptyUser = "00000000-0000-0000-0000-000000000003"
)

var (
	baseURL       = envOr("E2E_BASE_URL", "http://localhost:8080")
	webhookSecret = os.Getenv("E2E_MOBILE_MONEY_WEBHOOK_SECRET")
	httpClient    = &http.Client{Timeout: timeout}
)

type accountView struct {
	AccountID    string `json:"accountId"`
	Credits      int64  `json:"credits"`
	IsPro        bool   `json:"isPro"`
	Transactions []struct {
		ProviderReference string `json:"providerReference"`
		CreditsGranted    int64  `json:"creditsGranted"`
	} `json:"transactions"`
}

type webhookReply struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	TransactionID string `json:"transactionId"`
}

func TestE2E_ProPlanSettlement(t *testing.T) {
	waitUntilReady(t)

	ref := fmt.Sprintf("tx-123-%d", time.Now().UnixNano())
	before := getAccount(t, newUser)

	t.Run("first_delivery_grants", func(t *testing.T) {
		code, reply := postWebhook(t, successNotification(ref, newUser, 50), webhookSecret)
		if code != http.StatusOK || !reply.Success || reply.Message != "settled" {
			t.Fatalf("first delivery: %d %+v", code, reply)
		}

		after := getAccount(t, newUser)
		if after.Credits != before.Credits+50 || !after.IsPro {
			t.Fatalf("after grant: credits %d pro %v, want %d true", after.Credits, after.IsPro, before.Credits+50)
		}
	})

	t.Run("replays_are_noops", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			code, reply := postWebhook(t, successNotification(ref, newUser, 50), webhookSecret)
			if code != http.StatusOK || reply.Message != "already processed" {
				t.Fatalf("replay %d: %d %+v", i, code, reply)
			}
		}
	})

	t.Run("tampered_replay_ignored", func(t *testing.T) {
		code, _ := postWebhook(t, successNotification(ref, newUser, 1), webhookSecret)
		if code != http.StatusOK {
			t.Fatalf("tampered replay: %d", code)
		}
	})

	t.Run("exactly_one_record", func(t *testing.T) {
		after := getAccount(t, newUser)
		if after.Credits != before.Credits+50 {
			t.Fatalf("credits %d, want %d", after.Credits, before.Credits+50)
		}

		n := 0
		for _, tx := range after.Transactions {
			if tx.ProviderReference == ref {
				n++
				if tx.CreditsGranted != 50 {
					t.Fatalf("record grants %d credits, want 50", tx.CreditsGranted)
				}
			}
		}
		if n != 1 {
			t.Fatalf("records for %s: %d, want 1", ref, n)
		}
	})
}

func TestE2E_BadSignatureRejected(t *testing.T) {
	if webhookSecret == "" {
		t.Skip("E2E_MOBILE_MONEY_WEBHOOK_SECRET not set; server runs unverified")
	}
	waitUntilReady(t)

	ref := fmt.Sprintf("tx-forged-%d", time.Now().UnixNano())
	before := getAccount(t, newUser)

	code, _ := postWebhook(t, successNotification(ref, newUser, 50), "forged")
	if code != http.StatusUnauthorized {
		t.Fatalf("forged delivery: %d, want 401", code)
	}

	if after := getAccount(t, newUser); after.Credits != before.Credits {
		t.Fatalf("forged delivery changed credits %d -> %d", before.Credits, after.Credits)
	}
}

func TestE2E_GenerationNeedsCredits(t *testing.T) {
	waitUntilReady(t)

	body := []byte(`{"kind":"image","sourceImage":"data:image/png;base64,AAAA"}`)
	resp, err := httpClient.Post(baseURL+"/accounts/"+emptyUser+"/generations", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("generation without credits: %d (%s), want 402", resp.StatusCode, b)
	}
}

/* -------------------- helpers -------------------- */

func successNotification(ref, account string, credits int) []byte {
	return []byte(fmt.Sprintf(
		`{"transactionId":%q,"isPaymentSucces":true,"event":"transaction.success","amount":5000,"stateData":{"type":"pro_plan","planName":"Mode Pro","credits":%d,"userId":%q}}`,
		ref, credits, account,
	))
}

func postWebhook(t *testing.T, body []byte, secret string) (int, webhookReply) {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, baseURL+"/webhooks/mobile_money", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("x-kkiapay-secret", secret)
	}
	if token := os.Getenv("E2E_WEBHOOK_ACCESS_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	var reply webhookReply
	_ = json.NewDecoder(resp.Body).Decode(&reply)

	return resp.StatusCode, reply
}

func getAccount(t *testing.T, id string) accountView {
	t.Helper()

	u := baseURL + "/accounts/" + id + "?refresh=true"
	resp, err := httpClient.Get(u)
	if err != nil {
		t.Fatalf("get %s: %v", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("GET %s: want 200, got %d (%s)", u, resp.StatusCode, b)
	}

	var v accountView
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode account: %v", err)
	}

	return v
}

// waitUntilReady polls /healthz until the API answers or waitReady elapses.
func waitUntilReady(t *testing.T) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitReady)
	defer cancel()

	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("service not ready at %s within %s", baseURL, waitReady)
		case <-tick.C:
			resp, err := httpClient.Get(baseURL + "/healthz")
			if err != nil {
				continue
			}
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
