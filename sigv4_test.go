// sigv4_test.go
package main

import (
	"context"
	"net/http"
	"testing"
	"time"
)

// emptyBodyHash is the SHA-256 of an empty body, hex-encoded -- the hash
// the engine would compute for a Bedrock request with no body.
const emptyBodyHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// fixedSignTime pins the signer to a fixed instant so Authorization header
// assertions don't depend on wall-clock time.
var fixedSignTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestResolveBedrockCredentialsPrefersHeaders(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_REGION", "us-east-2")

	headers := http.Header{}
	headers.Set("x-aws-access-key-id", "header-access")
	headers.Set("x-aws-secret-access-key", "header-secret")
	headers.Set("x-aws-region", "us-west-2")

	creds, err := resolveBedrockCredentials(context.Background(), headers, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.AccessKeyID != "header-access" {
		t.Errorf("expected header-access, got %q", creds.AccessKeyID)
	}
	if creds.SecretKey != "header-secret" {
		t.Errorf("expected header-secret, got %q", creds.SecretKey)
	}
	if creds.Region != "us-west-2" {
		t.Errorf("expected us-west-2, got %q", creds.Region)
	}
}

func TestResolveBedrockCredentialsFallsBackToEnv(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "env-access")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "env-secret")
	t.Setenv("AWS_SESSION_TOKEN", "")
	t.Setenv("AWS_REGION", "us-east-1")

	creds, err := resolveBedrockCredentials(context.Background(), http.Header{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds.AccessKeyID != "env-access" || creds.SecretKey != "env-secret" {
		t.Errorf("expected env credentials, got %+v", creds)
	}
	if creds.Region != "us-east-1" {
		t.Errorf("expected us-east-1, got %q", creds.Region)
	}
}

func TestResolveBedrockCredentialsMissingFails(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	if _, err := resolveBedrockCredentials(context.Background(), http.Header{}, nil); err == nil {
		t.Fatal("expected error when no credentials are available")
	}
}

func TestSigV4SignSetsAuthorizationHeader(t *testing.T) {
	signer := newSigV4Signer()
	req, err := http.NewRequest(http.MethodPost, "https://bedrock-runtime.us-east-1.amazonaws.com/model/foo/converse", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	creds := bedrockCredentials{AccessKeyID: "AKIDEXAMPLE", SecretKey: "secret", Region: "us-east-1"}
	if err := signer.sign(req.Context(), req, emptyBodyHash, creds, fixedSignTime); err != nil {
		t.Fatalf("unexpected error signing: %v", err)
	}
	if req.Header.Get("Authorization") == "" {
		t.Error("expected Authorization header to be set by SigV4 signer")
	}
	if req.Header.Get("X-Amz-Date") == "" {
		t.Error("expected X-Amz-Date header to be set by SigV4 signer")
	}
}
