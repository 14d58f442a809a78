package identity

import (
	"context"
	"errors"
	"testing"
)

func TestRegisterHashesPasswordAndLowercasesEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	user, err := svc.Register(ctx, RegisterInput{
		Name:     "Ada",
		Email:    "  Ada@Example.COM ",
		Password: "s3cretpw",
		Document: "12345678900",
		Phone:    "+5511999990000",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" {
		t.Fatal("expected a generated id")
	}
	if user.Email != "ada@example.com" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if string(user.PasswordHash) == "s3cretpw" {
		t.Fatal("password must not be stored in clear text")
	}
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	cases := []RegisterInput{
		{Email: "a@b.com", Password: "s3cretpw"},          // missing name
		{Name: "Ada", Password: "s3cretpw"},               // missing email
		{Name: "Ada", Email: "a@b.com"},                   // missing password
		{Name: "Ada", Email: "a@b.com", Password: "abc"},  // too short
	}
	for _, in := range cases {
		if _, err := svc.Register(ctx, in); err == nil {
			t.Fatalf("expected error for input %+v", in)
		}
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	in := RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "s3cretpw"}
	if _, err := svc.Register(ctx, in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(ctx, in); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository())

	registered, err := svc.Register(ctx, RegisterInput{Name: "Ada", Email: "ada@example.com", Password: "s3cretpw"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	user, err := svc.Authenticate(ctx, Credentials{Email: "ADA@example.com", Password: "s3cretpw"})
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.ID != registered.ID {
		t.Fatalf("expected user %s, got %s", registered.ID, user.ID)
	}

	if _, err := svc.Authenticate(ctx, Credentials{Email: "ada@example.com", Password: "wrongpw"}); err == nil {
		t.Fatal("expected error for wrong password")
	}
	if _, err := svc.Authenticate(ctx, Credentials{Email: "nobody@example.com", Password: "s3cretpw"}); err == nil {
		t.Fatal("expected error for unknown email")
	}
}
