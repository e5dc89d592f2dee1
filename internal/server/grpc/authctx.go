package grpcserver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/and161185/rootine/internal/model"
	"github.com/and161185/rootine/internal/service"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc/metadata"
)

type ctxKey string

const callerKey ctxKey = "rootine.caller"

// WithCaller stores the authenticated caller in context.
func WithCaller(ctx context.Context, c model.Caller) context.Context {
	return context.WithValue(ctx, callerKey, c)
}

// CallerFromCtx fetches the caller stored by the auth interceptor.
func CallerFromCtx(ctx context.Context) (model.Caller, bool) {
	c, ok := ctx.Value(callerKey).(model.Caller)
	return c, ok && c.Authenticated()
}

// ParseToken verifies an HS256 access token and returns the identity it carries.
func ParseToken(tok string, key []byte) (model.Caller, error) {
	var claims service.Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(*jwt.Token) (any, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithLeeway(30*time.Second), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return model.Caller{}, errors.New("invalid token")
	}
	if _, err := uuid.FromString(claims.Subject); err != nil {
		return model.Caller{}, errors.New("bad subject")
	}
	if claims.UserID <= 0 {
		return model.Caller{}, errors.New("bad uid")
	}
	return claims.Caller(), nil
}

func bearerTokenFromMD(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("no metadata")
	}
	for _, v := range md.Get("authorization") {
		v = strings.TrimSpace(v)
		if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
			t := strings.TrimSpace(v[7:])
			if t != "" {
				return t, nil
			}
		}
	}
	return "", errors.New("no bearer token")
}
