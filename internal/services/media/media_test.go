package media

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fastprodman/creditsettle/internal/services/ledger"
	"github.com/fastprodman/creditsettle/internal/services/ledger/ledgertest"
)

type stubBackend struct {
	name  string
	url   string
	err   error
	calls int
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Generate(context.Context, Request) (string, error) {
	b.calls++
	return b.url, b.err
}

var imageReq = Request{Kind: KindImage, SourceImage: "data:image/png;base64,AAAA", Style: "CLAY"}

func TestFallback(t *testing.T) {
	t.Parallel()

	boom := errors.New("model not found")

	tests := []struct {
		name        string
		backends    []*stubBackend
		wantURL     string
		wantCalls   []int
		wantQuota   bool
		wantAttempt int
	}{
		{
			name:      "first_succeeds",
			backends:  []*stubBackend{{name: "a", url: "u-a"}, {name: "b", url: "u-b"}},
			wantURL:   "u-a",
			wantCalls: []int{1, 0},
		},
		{
			name:      "falls_through",
			backends:  []*stubBackend{{name: "a", err: boom}, {name: "b", url: "u-b"}},
			wantURL:   "u-b",
			wantCalls: []int{1, 1},
		},
		{
			name:      "quota_stops_chain",
			backends:  []*stubBackend{{name: "a", err: ErrQuotaExceeded}, {name: "b", url: "u-b"}},
			wantCalls: []int{1, 0},
			wantQuota: true,
		},
		{
			name:        "all_fail",
			backends:    []*stubBackend{{name: "a", err: boom}, {name: "b", err: boom}},
			wantCalls:   []int{1, 1},
			wantAttempt: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backends := make([]Backend, len(tt.backends))
			for i, b := range tt.backends {
				backends[i] = b
			}

			got, err := Fallback(context.Background(), backends, func(ctx context.Context, b Backend) (string, error) {
				return b.Generate(ctx, imageReq)
			})

			for i, b := range tt.backends {
				if b.calls != tt.wantCalls[i] {
					t.Fatalf("backend %s called %d times, want %d", b.name, b.calls, tt.wantCalls[i])
				}
			}

			switch {
			case tt.wantURL != "":
				if err != nil || got != tt.wantURL {
					t.Fatalf("got %q, %v; want %q", got, err, tt.wantURL)
				}
			case tt.wantQuota:
				var attempt *AttemptError
				if !errors.Is(err, ErrQuotaExceeded) || !errors.As(err, &attempt) || attempt.Backend != "a" {
					t.Fatalf("err = %v, want quota attempt error from a", err)
				}
			default:
				var exhausted *ExhaustedError
				if !errors.As(err, &exhausted) || len(exhausted.Attempts) != tt.wantAttempt {
					t.Fatalf("err = %v, want %d attempts", err, tt.wantAttempt)
				}
				if !errors.Is(err, boom) {
					t.Fatalf("exhausted error does not expose causes")
				}
			}
		})
	}
}

func TestFallback_NoBackends(t *testing.T) {
	t.Parallel()

	_, err := Fallback(context.Background(), nil, func(context.Context, Backend) (string, error) { return "", nil })
	if !errors.Is(err, ErrNoBackends) {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerate_ConsumesOneCredit(t *testing.T) {
	t.Parallel()

	mem := ledgertest.NewMemory()
	acc := mem.AddAccount(2, false)
	svc := NewService(mem, nil, &stubBackend{name: "a", url: "https://cdn/x.png"})

	res, err := svc.Generate(context.Background(), acc, imageReq)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.MediaURL != "https://cdn/x.png" || res.CreditsLeft != 1 || res.Backend != "a" {
		t.Fatalf("result %+v", res)
	}
	if got := mem.Usage(acc); len(got) != 1 || got[0] != "generate:image" {
		t.Fatalf("usage %v", got)
	}
}

func TestGenerate_BlockedWithoutCredits(t *testing.T) {
	t.Parallel()

	mem := ledgertest.NewMemory()
	acc := mem.AddAccount(0, false)
	backend := &stubBackend{name: "a", url: "u"}
	svc := NewService(mem, nil, backend)

	_, err := svc.Generate(context.Background(), acc, imageReq)
	if !errors.Is(err, ledger.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want insufficient credits", err)
	}
	if backend.calls != 0 {
		t.Fatalf("backend called without a credit")
	}
}

func TestGenerate_FailureKeepsCreditSpent(t *testing.T) {
	t.Parallel()

	mem := ledgertest.NewMemory()
	acc := mem.AddAccount(1, false)
	svc := NewService(mem, nil, &stubBackend{name: "a", err: errors.New("down")})

	res, err := svc.Generate(context.Background(), acc, imageReq)
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("err = %v", err)
	}
	if res.CreditsLeft != 0 || mem.Credits(acc) != 0 {
		t.Fatalf("credit refunded: %d", mem.Credits(acc))
	}
}

func TestGenerate_InvalidRequest(t *testing.T) {
	t.Parallel()

	mem := ledgertest.NewMemory()
	acc := mem.AddAccount(1, false)
	svc := NewService(mem, nil, &stubBackend{name: "a", url: "u"})

	_, err := svc.Generate(context.Background(), acc, Request{Kind: "audio", SourceImage: "x"})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
	if mem.Credits(acc) != 1 {
		t.Fatalf("invalid request spent a credit")
	}
}

func TestHTTPBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantURL   string
		wantQuota bool
		wantErr   bool
	}{
		{name: "ok", status: http.StatusOK, body: `{"mediaUrl":"https://cdn/a.png"}`, wantURL: "https://cdn/a.png"},
		{name: "quota", status: http.StatusTooManyRequests, body: `{"error":"quota"}`, wantQuota: true},
		{name: "server_error", status: http.StatusInternalServerError, body: `{"error":"boom"}`, wantErr: true},
		{name: "empty", status: http.StatusOK, body: `{}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var req generateRequest
				if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model != "image-primary" {
					http.Error(w, "bad request", http.StatusBadRequest)
					return
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			backends := NewHTTPBackends(srv.URL, []string{"image-primary", ""}, time.Second)
			if len(backends) != 1 {
				t.Fatalf("backends = %d", len(backends))
			}

			got, err := backends[0].Generate(context.Background(), imageReq)
			switch {
			case tt.wantQuota:
				if !errors.Is(err, ErrQuotaExceeded) {
					t.Fatalf("err = %v, want quota", err)
				}
			case tt.wantErr:
				if err == nil || strings.TrimSpace(got) != "" {
					t.Fatalf("got %q, %v; want error", got, err)
				}
			default:
				if err != nil || got != tt.wantURL {
					t.Fatalf("got %q, %v", got, err)
				}
			}
		})
	}
}
