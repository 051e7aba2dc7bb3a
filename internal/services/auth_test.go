package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/debrief-backend/internal/platform/ctxutil"
	"github.com/yungbote/debrief-backend/internal/platform/logger"
)

func TestAuthTokenRoundTrip(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	auth, err := NewAuthService(log, "test-secret")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	userID := uuid.New()
	tok, err := auth.GenerateToken(userID, time.Minute)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	ctx, err := auth.SetContextFromToken(context.Background(), tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.UserID != userID {
		t.Fatalf("expected user id on context")
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	log, _ := logger.New("development")
	auth, err := NewAuthService(log, "test-secret")
	if err != nil {
		t.Fatalf("auth: %v", err)
	}

	if _, err := auth.SetContextFromToken(context.Background(), ""); err == nil {
		t.Fatalf("empty token must fail")
	}
	if _, err := auth.SetContextFromToken(context.Background(), "not.a.jwt"); err == nil {
		t.Fatalf("garbage token must fail")
	}

	// Token signed with a different secret.
	other, _ := NewAuthService(log, "other-secret")
	tok, _ := other.GenerateToken(uuid.New(), time.Minute)
	if _, err := auth.SetContextFromToken(context.Background(), tok); err == nil {
		t.Fatalf("wrong-secret token must fail")
	}

	// Expired token.
	expired, _ := auth.GenerateToken(uuid.New(), -time.Minute)
	if _, err := auth.SetContextFromToken(context.Background(), expired); err == nil {
		t.Fatalf("expired token must fail")
	}
}
