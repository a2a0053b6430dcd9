// sigv4.go
package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// sigv4Signer signs requests for the Bedrock service using AWS Signature
// Version 4. Canonical-request construction, the signing-key derivation
// chain, and the Authorization header assembly are delegated to
// aws-sdk-go-v2's v4.Signer -- there is no reason to hand-roll HMAC chaining
// the SDK already implements correctly.
type sigv4Signer struct {
	signer *v4.Signer
}

func newSigV4Signer() *sigv4Signer {
	return &sigv4Signer{signer: v4.NewSigner()}
}

// bedrockCredentialHeaders are the per-request credential headers the
// gateway accepts for Bedrock. ProcessHeaders carries them on the outbound
// header set so Sign can resolve them; Sign strips them again before the
// request leaves for Bedrock.
var bedrockCredentialHeaders = []string{
	"x-aws-access-key-id",
	"x-aws-secret-access-key",
	"x-aws-session-token",
	"x-aws-region",
}

// bedrockCredentials is the resolved credential set for one request, sourced
// either from per-request headers or the process environment, with headers
// taking priority.
type bedrockCredentials struct {
	AccessKeyID  string
	SecretKey    string
	SessionToken string
	Region       string
}

// loadDefaultAWSCredentials loads the SDK's default credential chain
// (shared config file, SSO, instance role) once at startup. Returns nil
// when the chain cannot be constructed; callers treat nil as "no fallback".
func loadDefaultAWSCredentials(ctx context.Context) aws.CredentialsProvider {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil
	}
	return cfg.Credentials
}

// resolveBedrockCredentials implements the priority order: per-request
// x-aws-* headers first, process environment second, then the SDK default
// chain when one was loaded at startup.
func resolveBedrockCredentials(ctx context.Context, headers http.Header, fallback aws.CredentialsProvider) (bedrockCredentials, error) {
	creds := bedrockCredentials{
		AccessKeyID:  headers.Get("x-aws-access-key-id"),
		SecretKey:    headers.Get("x-aws-secret-access-key"),
		SessionToken: headers.Get("x-aws-session-token"),
		Region:       headers.Get("x-aws-region"),
	}

	if creds.AccessKeyID == "" {
		creds.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if creds.SecretKey == "" {
		creds.SecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	if creds.SessionToken == "" {
		creds.SessionToken = os.Getenv("AWS_SESSION_TOKEN")
	}
	if creds.Region == "" {
		creds.Region = os.Getenv("AWS_REGION")
	}

	if (creds.AccessKeyID == "" || creds.SecretKey == "") && fallback != nil {
		if c, err := fallback.Retrieve(ctx); err == nil {
			creds.AccessKeyID = c.AccessKeyID
			creds.SecretKey = c.SecretAccessKey
			creds.SessionToken = c.SessionToken
		}
	}

	if creds.AccessKeyID == "" || creds.SecretKey == "" {
		return bedrockCredentials{}, NewGatewayError(ErrInvalidCredentials, "missing AWS access key or secret", 0)
	}
	return creds, nil
}

// sign mutates r in place: adds "host" and "x-amz-date" (mandatory before
// signing), optionally "x-amz-security-token" for a session token, then
// computes and sets the Authorization header. bodyHash is the lowercase hex
// SHA-256 of body -- Bedrock request bodies are always fully known, so the
// "UNSIGNED-PAYLOAD" literal is never used here.
func (s *sigv4Signer) sign(ctx context.Context, r *http.Request, bodyHash string, creds bedrockCredentials, now time.Time) error {
	awsCreds := aws.Credentials{
		AccessKeyID:     creds.AccessKeyID,
		SecretAccessKey: creds.SecretKey,
		SessionToken:    creds.SessionToken,
	}
	return s.signer.SignHTTP(ctx, awsCreds, r, bodyHash, "bedrock", creds.Region, now)
}
