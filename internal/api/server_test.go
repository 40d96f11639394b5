package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v5"

	"github.com/cardioml/ecgnet/internal/logger"
	"github.com/cardioml/ecgnet/internal/model"
)

func newTestEcho(t *testing.T, requestsPerSecond float64) *echo.Echo {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.GRUUnits = 8
	cfg.Heads = 4
	m, err := model.New(cfg)
	if err != nil {
		t.Fatalf("construct model: %v", err)
	}
	server := NewServer(m, logger.JSON(io.Discard, slog.LevelError), requestsPerSecond)
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func signalJSON(channels, samples int) string {
	var b strings.Builder
	b.WriteString(`{"signal":[`)
	for ch := 0; ch < channels; ch++ {
		if ch > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('[')
		for i := 0; i < samples; i++ {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString("0.1")
		}
		b.WriteByte(']')
	}
	b.WriteString(`]}`)
	return b.String()
}

func TestClassifyHappyPath(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodPost, "/v1/classify", signalJSON(12, 256))
	if rec.Code != http.StatusOK {
		t.Fatalf("classify status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var resp ClassifyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode classify response: %v", err)
	}
	if !strings.HasPrefix(resp.ID, "cls-") {
		t.Fatalf("expected cls- id, got %q", resp.ID)
	}
	if len(resp.Probabilities) != 9 {
		t.Fatalf("expected 9 probabilities, got %d", len(resp.Probabilities))
	}
	for _, p := range resp.Probabilities {
		if p < 0 || p > 1 {
			t.Fatalf("probability %f outside [0, 1]", p)
		}
	}
}

func TestClassifyValidationErrors(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)

	rec := doJSON(t, e, http.MethodPost, "/v1/classify", `{"signal": not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed json, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/classify", signalJSON(3, 256))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong channel count, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "12 channels") {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}

	ragged := `{"signal":[` + strings.Repeat(`[0.1,0.2],`, 11) + `[0.1]]}`
	rec = doJSON(t, e, http.MethodPost, "/v1/classify", ragged)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for ragged channels, got %d body=%s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, e, http.MethodPost, "/v1/classify", signalJSON(12, 16))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short signal, got %d body=%s", rec.Code, rec.Body.String())
	}
}

func TestClassifyRateLimit(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 1)
	body := signalJSON(12, 256)
	var limited bool
	for i := 0; i < 5; i++ {
		rec := doJSON(t, e, http.MethodPost, "/v1/classify", body)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d body=%s", rec.Code, rec.Body.String())
		}
	}
	if !limited {
		t.Fatal("expected a rate limited response")
	}
}

func TestModelInfo(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodGet, "/v1/model", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("model info status: got %d body=%s", rec.Code, rec.Body.String())
	}

	var info ModelInfoResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode model info: %v", err)
	}
	if info.InputChannels != 12 || info.NumClasses != 9 {
		t.Fatalf("unexpected model info: %+v", info)
	}
	if info.ParamCount <= 0 {
		t.Fatalf("expected positive param count, got %d", info.ParamCount)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	e := newTestEcho(t, 0)
	rec := doJSON(t, e, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected healthz body: %s", rec.Body.String())
	}
}
