package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestMockEmbedderSimilarity(t *testing.T) {
	e := NewMockEmbedder(128)
	vecs, err := e.Embed(context.Background(), []string{
		"negligence duty of care",
		"Duty of care in negligence.",
		"contract formation offer acceptance",
	}, TaskDocument)
	if err != nil {
		t.Fatal(err)
	}

	dot := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	if d := dot(vecs[0], vecs[1]); d < 0.8 {
		t.Errorf("expected shared words to give similar vectors, got %f", d)
	}
	if dot(vecs[0], vecs[2]) >= dot(vecs[0], vecs[1]) {
		t.Error("expected unrelated text to be less similar")
	}
}

func TestOpenAIEmbedderBatchesAndOrders(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer key")
		}
		var req embeddingRequest
		json.NewDecoder(r.Body).Decode(&req)

		// reply out of order to check index handling
		resp := embeddingResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{Index: i, Embedding: []float32{float32(len(req.Input[i]))}})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("key", "text-embedding-3-small", srv.URL, 0, 2, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	vecs, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"}, TaskQuery)
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 batches, got %d", calls)
	}
	for i, want := range []float32{1, 2, 3} {
		if vecs[i][0] != want {
			t.Errorf("vector %d = %v, want %v", i, vecs[i][0], want)
		}
	}
	if e.Dimension() != 1 {
		t.Errorf("expected dimension learned from response, got %d", e.Dimension())
	}
}

func TestOpenAIEmbedderRetriesOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(embeddingResponse{Data: []embeddingData{{Index: 0, Embedding: []float32{1}}}})
	}))
	defer srv.Close()

	e, _ := NewOpenAIEmbedder("key", "", srv.URL, 0, 0, time.Second)
	if _, err := e.Embed(context.Background(), []string{"x"}, TaskQuery); err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestOpenAIEmbedderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad model"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	e, _ := NewOpenAIEmbedder("key", "nope", srv.URL, 0, 0, time.Second)
	if _, err := e.Embed(context.Background(), []string{"x"}, TaskQuery); err == nil {
		t.Error("expected error for 400 response")
	}
}

func TestNewOpenAIEmbedderRequiresKey(t *testing.T) {
	if _, err := NewOpenAIEmbedder("", "", "", 0, 0, 0); err == nil {
		t.Error("expected error without API key")
	}
}
