package tradernet

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quotewatch/internal/domain/model"
)

func TestSignaturePayload(t *testing.T) {
	got := signaturePayload("pub", "getPositionJson", "1700000000000", nil)
	want := "apiKey=pub&cmd=getPositionJson&nonce=1700000000000"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	got = signaturePayload("pub", "getHistory", "1", map[string]string{"to": "2", "from": "1"})
	want = "apiKey=pub&cmd=getHistory&nonce=1&params=from=1&to=2"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestCredentialsSign(t *testing.T) {
	// HMAC-SHA256("key", "The quick brown fox jumps over the lazy dog")
	c := NewCredentials("pub", "key")
	want := "f7bc83f430538424b13298e6aa6fb143ef4d59a14946175997479dbc2d1a3cd8"
	if got := c.Sign("The quick brown fox jumps over the lazy dog"); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestClientGetPositions(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v2/cmd/getPositionJson" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("bad form: %v", err)
		}
		if r.PostForm.Get("apiKey") != "pub" || r.PostForm.Get("nonce") != "1700000000000" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		wantSig := NewCredentials("pub", "secret").Sign("apiKey=pub&cmd=getPositionJson&nonce=1700000000000")
		if r.Header.Get("X-NtApi-Sig") != wantSig || r.Header.Get("X-NtApi-PublicKey") != "pub" {
			t.Errorf("bad signature headers")
		}
		w.Write([]byte(`{"result":{"ps":{"pos":[
			{"i":"+AAPL.16JAN2026.C200","base_contract_code":"AAPL.US"},
			{"i":"TSLA.US"},
			{"i":""}
		]}}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	c.now = func() time.Time { return now }

	positions, err := c.GetPositions(context.Background(), model.BrokerAccount{UserID: 1, APIKey: "pub", SecretKey: "secret"})
	if err != nil {
		t.Fatalf("GetPositions failed: %v", err)
	}
	if len(positions) != 2 {
		t.Fatalf("expected 2 positions, got %d", len(positions))
	}
	if positions[0].Symbol != "+AAPL.16JAN2026.C200" || positions[0].UnderlyingSymbol != "AAPL.US" {
		t.Errorf("unexpected position %+v", positions[0])
	}
	if positions[1].Symbol != "TSLA.US" || positions[1].UnderlyingSymbol != "" {
		t.Errorf("unexpected position %+v", positions[1])
	}
}

func TestClientGetPositionsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("X-NtApi-PublicKey"), "bad") {
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`forbidden`))
			return
		}
		w.Write([]byte(`{"errMsg":"Bad signature","code":2}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	if _, err := c.GetPositions(context.Background(), model.BrokerAccount{APIKey: "bad", SecretKey: "x"}); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("expected http 403 error, got %v", err)
	}
	if _, err := c.GetPositions(context.Background(), model.BrokerAccount{APIKey: "pub", SecretKey: "x"}); err == nil || !strings.Contains(err.Error(), "Bad signature") {
		t.Errorf("expected api error, got %v", err)
	}
}
