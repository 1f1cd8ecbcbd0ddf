package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ukisoft/ownplate/internal/platform/requestctx"
)

type placeBody struct {
	Tip     float64 `json:"tip"`
	SendSMS bool    `json:"sendSMS"`
}

func TestDecodeJSON(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		want    placeBody
		wantErr bool
	}{
		{name: "empty body", body: "", want: placeBody{}},
		{name: "fields", body: `{"tip":100.5,"sendSMS":true}`, want: placeBody{Tip: 100.5, SendSMS: true}},
		{name: "unknown field", body: `{"tip":1,"status":700}`, wantErr: true},
		{name: "malformed", body: `{"tip":`, wantErr: true},
		{name: "trailing object", body: `{"tip":1}{"tip":2}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var got placeBody
			err := DecodeJSON(req, &got)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidBody) {
					t.Fatalf("expected ErrInvalidBody, got %v", err)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("got %+v (%v), want %+v", got, err, tc.want)
			}
		})
	}
}

func TestWriteErrorMergesDetailsAndTrace(t *testing.T) {
	ctx := requestctx.WithTrace(context.Background(), requestctx.TraceInfo{TraceID: "abc123"})
	rr := httptest.NewRecorder()
	WriteError(ctx, rr, NewError("failed-precondition", "cannot change status\nfrom placed", http.StatusConflict).
		WithDetails(map[string]any{"current_status": "placed"}))

	if rr.Code != http.StatusConflict {
		t.Fatalf("unexpected status %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "failed-precondition" || body["current_status"] != "placed" || body["trace_id"] != "abc123" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["message"] != "cannot change status from placed" {
		t.Fatalf("expected newline to be sanitised, got %q", body["message"])
	}
}
