package auth

import (
	"errors"
	"testing"
	"time"

	"Allowance/internal/domain/models"
)

func TestNewTokenAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := "super-secret"
	user := models.User{Id: 42, Email: "kid@example.com"}

	tok, err := NewToken(user, secret, time.Hour)
	if err != nil {
		t.Fatalf("NewToken error: %v", err)
	}

	claims, err := ParseToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseToken error: %v", err)
	}
	if claims.UserId != user.Id {
		t.Fatalf("userId mismatch: got %d want %d", claims.UserId, user.Id)
	}
	if claims.Email != user.Email {
		t.Fatalf("email mismatch: got %q want %q", claims.Email, user.Email)
	}
}

func TestParseToken_Expired(t *testing.T) {
	t.Parallel()

	secret := "secret"
	tok, err := NewToken(models.User{Id: 1, Email: "a@b.c"}, secret, -1*time.Second)
	if err != nil {
		t.Fatalf("NewToken error: %v", err)
	}

	_, err = ParseToken(tok, secret)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestParseToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := NewToken(models.User{Id: 1, Email: "a@b.c"}, "right-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewToken error: %v", err)
	}

	_, err = ParseToken(tok, "wrong-secret")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for forged signature, got %v", err)
	}
}

func TestParseToken_Malformed(t *testing.T) {
	t.Parallel()

	_, err := ParseToken("not.a.jwt", "k")
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for malformed token, got %v", err)
	}
}

func TestParseToken_MissingIdentity(t *testing.T) {
	t.Parallel()

	secret := "s"
	tok, err := NewToken(models.User{Id: 0, Email: "a@b.c"}, secret, time.Hour)
	if err != nil {
		t.Fatalf("NewToken error: %v", err)
	}

	_, err = ParseToken(tok, secret)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for zero user id, got %v", err)
	}
}

func TestFromHeader(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "valid", header: "Bearer abc.def.ghi", want: "abc.def.ghi"},
		{name: "case insensitive scheme", header: "bearer tok", want: "tok"},
		{name: "empty", header: "", wantErr: true},
		{name: "no scheme", header: "abc.def.ghi", wantErr: true},
		{name: "wrong scheme", header: "Basic dXNlcg==", wantErr: true},
		{name: "scheme only", header: "Bearer ", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := FromHeader(tc.header)
			if tc.wantErr {
				if !errors.Is(err, ErrMissingToken) {
					t.Fatalf("expected ErrMissingToken, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromHeader error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("token mismatch: got %q want %q", got, tc.want)
			}
		})
	}
}
