package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"team-presence/database"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	ok, err := CheckPassword(hash, "correct horse")
	if err != nil || !ok {
		t.Errorf("Expected password to match, got ok=%v err=%v", ok, err)
	}

	ok, err = CheckPassword(hash, "wrong horse")
	if err != nil || ok {
		t.Errorf("Expected mismatch without error, got ok=%v err=%v", ok, err)
	}
}

func TestHashPasswordTooShort(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrPasswordTooShort) {
		t.Errorf("Expected ErrPasswordTooShort, got %v", err)
	}
}

func TestIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)
	user := &database.User{ID: uuid.New(), Email: "coach@example.com", Role: database.RoleCoach}

	token, err := issuer.Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != database.RoleCoach || claims.Issuer != Issuer {
		t.Errorf("Unexpected claims: %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	user := &database.User{ID: uuid.New(), Role: database.RolePlayer}
	token, err := NewTokenIssuer("secret-a", time.Hour).Issue(user)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := NewTokenIssuer("secret-b", time.Hour).Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	issuer.now = func() time.Time { return issued }

	token, err := issuer.Issue(&database.User{ID: uuid.New(), Role: database.RolePlayer})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	issuer.now = time.Now
	if _, err := issuer.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}
