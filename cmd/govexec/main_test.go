package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/openexec-gateway/internal/approval"
	"github.com/xela07ax/openexec-gateway/internal/domain"
)

func TestRunGovernedFlow(t *testing.T) {
	priv, _, err := approval.GenerateKeypair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action  string                 `json:"action"`
			Payload map[string]interface{} `json:"payload"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		artifact, err := approval.MintEd25519(req.Action, req.Payload, priv, "tenant-001", "", time.Minute)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(artifact)
	}))
	defer authority.Close()

	var got domain.ActionRequest
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/execute" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":       "exec-1",
			"approved": true,
			"result":   map[string]interface{}{"echo": got.Payload},
		})
	}))
	defer gateway.Close()

	out, err := run(context.Background(), options{
		gatewayURL:   gateway.URL,
		authorityURL: authority.URL,
		action:       "echo",
		payloadJSON:  `{"msg":"hello"}`,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if got.Action != "echo" {
		t.Fatalf("unexpected action forwarded: %s", got.Action)
	}
	if got.Nonce == "" {
		t.Fatalf("nonce must be generated when not given")
	}
	if got.ApprovalArtifact == nil || got.ApprovalArtifact.Signature == "" {
		t.Fatalf("request must carry the minted artifact")
	}
	if !strings.Contains(out, "exec-1") {
		t.Fatalf("expected the execution record in output, got %s", out)
	}
}

func TestRunRejectsBadPayloadJSON(t *testing.T) {
	_, err := run(context.Background(), options{payloadJSON: "{"})
	if err == nil {
		t.Fatalf("expected error for malformed payload JSON")
	}
}

func TestRunSurfacesGatewayRejection(t *testing.T) {
	priv, _, err := approval.GenerateKeypair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	authority := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		artifact, _ := approval.MintEd25519("echo", map[string]interface{}{}, priv, "tenant-001", "", time.Minute)
		json.NewEncoder(w).Encode(artifact)
	}))
	defer authority.Close()

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Tenant mismatch: expected tenant-002, got tenant-001"})
	}))
	defer gateway.Close()

	_, err = run(context.Background(), options{
		gatewayURL:   gateway.URL,
		authorityURL: authority.URL,
		action:       "echo",
		payloadJSON:  "{}",
	})
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected the 403 rejection to surface, got %v", err)
	}
}
