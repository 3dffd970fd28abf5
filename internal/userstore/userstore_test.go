package userstore

import (
	"context"
	"testing"

	"github.com/meridianhealth/patient-portal/internal/authz"
)

func TestCreateAndAuthenticate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	acct, err := m.Create(ctx, "Pat.Jones@Example.com", "Sup3rSecret!", authz.RolePatient)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if acct.ID == "" {
		t.Fatal("no id assigned")
	}
	if acct.Email != "pat.jones@example.com" {
		t.Fatalf("email not normalized: %q", acct.Email)
	}

	got, err := m.Authenticate(ctx, "pat.jones@example.com", "Sup3rSecret!")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != acct.ID {
		t.Fatalf("authenticated wrong account: %q", got.ID)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.Create(ctx, "a@example.com", "Sup3rSecret!", authz.RolePatient); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := m.Authenticate(ctx, "a@example.com", "wrong"); err != ErrBadCredential {
		t.Fatalf("wrong password err = %v, want ErrBadCredential", err)
	}
	if _, err := m.Authenticate(ctx, "nobody@example.com", "whatever"); err != ErrBadCredential {
		t.Fatalf("unknown email err = %v, want ErrBadCredential", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	if _, err := m.Create(ctx, "a@example.com", "Sup3rSecret!", authz.RolePatient); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := m.Create(ctx, "A@Example.com", "0therSecret!", authz.RolePatient); err != ErrDuplicate {
		t.Fatalf("duplicate err = %v, want ErrDuplicate", err)
	}
}

func TestGet(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	acct, _ := m.Create(ctx, "a@example.com", "Sup3rSecret!", authz.RoleAdmin)

	got, err := m.Get(ctx, acct.ID)
	if err != nil || got.Role != authz.RoleAdmin {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if _, err := m.Get(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("missing err = %v, want ErrNotFound", err)
	}
}
