package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type sentEmail struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func TestResendSend(t *testing.T) {
	var got sentEmail
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emails" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer re_test" {
			t.Errorf("missing bearer key, got %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"abc"}`))
	}))
	defer srv.Close()

	r, err := NewResend("re_test", srv.URL+"/", "CaseBeam <noreply@casebeam.test>")
	if err != nil {
		t.Fatal(err)
	}
	err = r.Send(context.Background(), Message{
		To:      []string{"lawyer@example.com"},
		Subject: "Welcome",
		HTML:    "<p>hi</p>",
	})
	if err != nil {
		t.Fatal(err)
	}
	if got.From != "CaseBeam <noreply@casebeam.test>" || got.Subject != "Welcome" || len(got.To) != 1 || got.HTML != "<p>hi</p>" {
		t.Errorf("unexpected payload: %+v", got)
	}
}

func TestResendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"invalid from"}`))
	}))
	defer srv.Close()

	r, _ := NewResend("re_test", srv.URL, "a@b.test")
	err := r.Send(context.Background(), Message{To: []string{"x@y.test"}, Subject: "s", Text: "t"})
	if err == nil || !strings.Contains(err.Error(), "invalid from") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestResendValidation(t *testing.T) {
	if _, err := NewResend("", "", "a@b.test"); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := NewResend("k", "", ""); err == nil {
		t.Error("expected error for missing from")
	}
	r, _ := NewResend("k", "", "a@b.test")
	if err := r.Send(context.Background(), Message{Subject: "s"}); err == nil {
		t.Error("expected error for no recipients")
	}
}

func TestLogSender(t *testing.T) {
	var s Sender = Log{}
	if err := s.Send(context.Background(), Message{To: []string{"a@b.test"}, Subject: "s", Text: "t"}); err != nil {
		t.Fatal(err)
	}
}
