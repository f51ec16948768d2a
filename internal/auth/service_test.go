package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/scriptstudio/backend/internal/models"
)

type memStore struct {
	byEmail map[string]*models.Account
}

func newMemStore() *memStore { return &memStore{byEmail: map[string]*models.Account{}} }

func (m *memStore) Create(_ context.Context, email, hash, name string, credits int64) (*models.Account, error) {
	if _, ok := m.byEmail[email]; ok {
		return nil, &pgconn.PgError{Code: "23505"}
	}
	a := &models.Account{ID: uuid.New(), Email: email, DisplayName: name, PasswordHash: hash, Credits: credits}
	m.byEmail[email] = a
	return a, nil
}

func (m *memStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return m.byEmail[email], nil
}

func TestRegister_OpensWithStartingCredits(t *testing.T) {
	svc := NewService(newMemStore(), "test-secret", models.DefaultStartingCredits)

	acc, err := svc.Register(context.Background(), "Creator@Example.com ", "hunter22", "Creator")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.Credits != 1000 {
		t.Errorf("credits: got %d, want 1000", acc.Credits)
	}
	if acc.Email != "creator@example.com" {
		t.Errorf("email not normalized: %q", acc.Email)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	svc := NewService(newMemStore(), "test-secret", 1000)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "a@example.com", "hunter22", ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(ctx, "a@example.com", "hunter22", ""); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("got %v, want ErrDuplicateEmail", err)
	}
}

func TestLoginAndValidateToken(t *testing.T) {
	svc := NewService(newMemStore(), "test-secret", 1000)
	ctx := context.Background()

	acc, _ := svc.Register(ctx, "b@example.com", "hunter22", "")
	token, err := svc.Login(ctx, "b@example.com", "hunter22")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != acc.ID {
		t.Errorf("subject: got %s, want %s", id, acc.ID)
	}

	if _, err := svc.Login(ctx, "b@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.Login(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown email: got %v, want ErrInvalidCredentials", err)
	}
}

func TestValidateToken_Rejects(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, "test-secret", 1000)
	other := NewService(store, "other-secret", 1000)
	ctx := context.Background()

	svc.Register(ctx, "c@example.com", "hunter22", "")
	foreign, _ := other.Login(ctx, "c@example.com", "hunter22")
	if _, err := svc.ValidateToken(ctx, foreign); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign signature: got %v, want ErrInvalidToken", err)
	}

	expiring := svc.(*service)
	expiring.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }
	old, _ := expiring.issueToken(uuid.New())
	expiring.now = time.Now
	if _, err := svc.ValidateToken(ctx, old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token: got %v, want ErrInvalidToken", err)
	}

	if _, err := svc.ValidateToken(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: got %v, want ErrInvalidToken", err)
	}
}
