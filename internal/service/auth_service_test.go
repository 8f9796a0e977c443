package service

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"reefcontrol/internal/models"
)

type fakeAuthRepo struct {
	users  map[string]*models.User
	nextID int
	err    error
}

func newFakeAuthRepo() *fakeAuthRepo {
	return &fakeAuthRepo{users: map[string]*models.User{}, nextID: 1}
}

func (f *fakeAuthRepo) Create(username, hash string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	id := f.nextID
	f.nextID++
	f.users[username] = &models.User{ID: id, Username: username, PasswordHash: hash}
	return id, nil
}

func (f *fakeAuthRepo) GetByUsername(username string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.users[username], nil
}

func TestSignUp_HashesPassword(t *testing.T) {
	t.Parallel()

	repo := newFakeAuthRepo()
	svc := NewAuthService(repo, "test-key")

	id, err := svc.SignUp("alice", "s3cret")
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1, got %d", id)
	}
	u := repo.users["alice"]
	if u == nil || u.PasswordHash == "s3cret" {
		t.Fatalf("password stored unhashed")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cret")); err != nil {
		t.Fatalf("stored hash does not verify: %v", err)
	}
}

func TestSignUp_EmptyPassword(t *testing.T) {
	t.Parallel()

	svc := NewAuthService(newFakeAuthRepo(), "test-key")
	if _, err := svc.SignUp("alice", "   "); err == nil {
		t.Fatalf("expected error for blank password")
	}
}

func TestGenerateToken_AndParse(t *testing.T) {
	t.Parallel()

	repo := newFakeAuthRepo()
	svc := NewAuthService(repo, "test-key")
	if _, err := svc.SignUp("alice", "s3cret"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	token, err := svc.GenerateToken("alice", "s3cret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	userID, err := svc.ParseToken(token)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if userID != 1 {
		t.Fatalf("expected user id 1, got %d", userID)
	}
}

func TestGenerateToken_Failures(t *testing.T) {
	t.Parallel()

	repo := newFakeAuthRepo()
	svc := NewAuthService(repo, "test-key")
	if _, err := svc.SignUp("alice", "s3cret"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if _, err := svc.GenerateToken("ghost", "s3cret"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.GenerateToken("alice", "wrong"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestParseToken_WrongKey(t *testing.T) {
	t.Parallel()

	repo := newFakeAuthRepo()
	issuer := NewAuthService(repo, "key-a")
	verifier := NewAuthService(repo, "key-b")
	if _, err := issuer.SignUp("alice", "s3cret"); err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	token, err := issuer.GenerateToken("alice", "s3cret")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected verification failure with the wrong key")
	}
	if _, err := verifier.ParseToken("not-a-token"); err == nil {
		t.Fatalf("expected parse failure for garbage input")
	}
}
