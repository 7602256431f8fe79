package auth

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/core/data"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")))
	if err != nil {
		t.Fatalf("error initializing test database: %s", err)
	}
	if err := db.AutoMigrate(&data.Account{}); err != nil {
		t.Fatalf("error auto migrating db: %s", err)
	}

	logger := logrus.New()
	logger.Out = io.Discard

	cfg := &core.Config{}
	cfg.Scores.DefaultScore = 1000
	cfg.Scores.KFactor = 32
	return NewService(db, logger, cfg)
}

func seedAccount(t *testing.T, s *Service, name, password string, mutate func(a *data.Account)) *data.Account {
	t.Helper()
	account, err := s.CreateAccount(name, password, "127.0.0.1")
	if err != nil {
		t.Fatalf("error creating test account: %s", err)
	}
	if mutate != nil {
		mutate(account)
		if err := data.UpdateAccount(s.DB, account); err != nil {
			t.Fatalf("error updating test account: %s", err)
		}
	}
	return account
}

func TestSplitCredential(t *testing.T) {
	tests := []struct {
		credential string
		name       string
		password   string
	}{
		{"Yugi", "Yugi", ""},
		{"Yugi$pharaoh", "Yugi", "pharaoh"},
		{" Yugi $pa$ss", "Yugi", "pa$ss"},
		{"$secret", "", "secret"},
	}
	for _, tt := range tests {
		name, password := SplitCredential(tt.credential)
		if name != tt.name || password != tt.password {
			t.Errorf("SplitCredential(%q) = (%q, %q), want (%q, %q)",
				tt.credential, name, password, tt.name, tt.password)
		}
	}
}

func TestValidName(t *testing.T) {
	tests := map[string]bool{
		"Yugi":                 true,
		"Seto Kaiba":           true,
		"":                     false,
		"   ":                  false,
		"bad\x01name":          false,
		"exactlynineteenchars": false,
		"nineteencharacters!":  true,
		"dollar$sign":          false,
	}
	for name, want := range tests {
		if got := ValidName(name); got != want {
			t.Errorf("ValidName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestService_Login(t *testing.T) {
	s := newTestService(t)
	seedAccount(t, s, "Kaiba", "blueeyes", nil)
	seedAccount(t, s, "Pegasus", "toon", func(a *data.Account) { a.GM = true })
	seedAccount(t, s, "Bandit", "keith", func(a *data.Account) { a.Banned = true })

	tests := map[string]struct {
		credential string
		want       LoginResult
	}{
		"invalid_username": {
			credential: "bad\x01name",
			want:       LoginResult{Name: "bad\x01name", State: client.InvalidUsername},
		},
		"unregistered_without_password": {
			credential: "Joey",
			want:       LoginResult{Name: "Joey", State: client.Unranked},
		},
		"registered_without_password": {
			credential: "kaiba",
			want:       LoginResult{Name: "Kaiba", State: client.NoPassword},
		},
		"wrong_password": {
			credential: "Kaiba$darkmagician",
			want:       LoginResult{Name: "Kaiba", State: client.InvalidPassword},
		},
		"correct_password": {
			credential: "KAIBA$blueeyes",
			want:       LoginResult{Name: "Kaiba", State: client.Authenticated},
		},
		"gm_gets_admin_color": {
			credential: "Pegasus$toon",
			want:       LoginResult{Name: "Pegasus", State: client.Authenticated, Color: ColorAdmin},
		},
		"banned": {
			credential: "Bandit$keith",
			want:       LoginResult{Name: "Bandit", State: client.InvalidUsername},
		},
		"auto_registration": {
			credential: "Mai$harpie",
			want:       LoginResult{Name: "Mai", State: client.Authenticated},
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			got := s.Login(tt.credential, "10.0.0.1")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Login() result did not match expected; diff:\n%s", diff)
			}
		})
	}

	account, err := data.FindAccountByUsername(s.DB, "mai")
	if err != nil || account == nil {
		t.Fatalf("expected auto registration to persist an account, err = %v", err)
	}
	if account.Score != 1000 || account.LastIP != "10.0.0.1" {
		t.Errorf("unexpected registered account: %+v", account)
	}
}

func TestService_Login_DatabaseError(t *testing.T) {
	s := newTestService(t)

	originalFindAccount := findAccount
	defer func() {
		findAccount = originalFindAccount
	}()
	findAccount = func(db *gorm.DB, username string) (*data.Account, error) {
		return nil, fmt.Errorf("something exploded")
	}

	got := s.Login("Yugi$pharaoh", "127.0.0.1")
	if got.State != client.Unranked {
		t.Errorf("expected a database failure to degrade to %s, got %s", client.Unranked, got.State)
	}
}

func TestCreateAccount(t *testing.T) {
	tests := map[string]struct {
		dbCreateFn func(db *gorm.DB, account *data.Account) error
		username   string
		wantedErr  error
	}{
		"database_error": {
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return fmt.Errorf("database error") },
			username:   "test",
			wantedErr:  fmt.Errorf("database error"),
		},
		"invalid_username": {
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return nil },
			username:   "",
			wantedErr:  ErrInvalidUsername,
		},
		"happy_path": {
			dbCreateFn: func(db *gorm.DB, account *data.Account) error { return nil },
			username:   "Test",
			wantedErr:  nil,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newTestService(t)
			originalCreateAccount := createAccount
			defer func() {
				createAccount = originalCreateAccount
			}()
			createAccount = tt.dbCreateFn

			account, err := s.CreateAccount(tt.username, "test", "127.0.0.1")
			if (err == nil) != (tt.wantedErr == nil) || (err != nil && err.Error() != tt.wantedErr.Error()) {
				t.Fatalf("expected error to = %v, got = %v", tt.wantedErr, err)
			}

			if err == nil {
				if account.Username != "test" || account.DisplayName != "Test" {
					t.Errorf("unexpected account names: %s / %s", account.Username, account.DisplayName)
				}
				if account.Password != HashPassword("test") {
					t.Error("expected account password to equal hashed password")
				}
			}
		})
	}
}

func TestHashPassword(t *testing.T) {
	password := "password"
	hashed := HashPassword(password)

	if password == hashed {
		t.Fatalf("expected hashed password not to equal password")
	}

	for i := 0; i < 10; i++ {
		if h := HashPassword(password); hashed != h {
			t.Fatalf("password hashing is non-deterministic (expected %s, got %s)", hashed, h)
		}
	}
}

func TestVerifyAccount(t *testing.T) {
	s := newTestService(t)
	seedAccount(t, s, "Kaiba", "blueeyes", nil)
	seedAccount(t, s, "Bandit", "keith", func(a *data.Account) { a.Banned = true })

	tests := map[string]struct {
		username string
		password string
		err      error
	}{
		"no_account":       {"Joey", "x", ErrAccountNotFound},
		"invalid_password": {"Kaiba", "x", ErrInvalidCredentials},
		"banned":           {"Bandit", "keith", ErrAccountBanned},
		"banned_bad_pass":  {"Bandit", "x", ErrAccountBanned},
		"happy":            {"Kaiba", "blueeyes", nil},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := s.VerifyAccount(tt.username, tt.password); err != tt.err {
				t.Errorf("expected wantedErr = %v, got = %v", tt.err, err)
			}
		})
	}
}

func TestService_Scores(t *testing.T) {
	s := newTestService(t)
	seedAccount(t, s, "Kaiba", "x", func(a *data.Account) { a.Score = 1500; a.MatchScore = 1300 })
	seedAccount(t, s, "Yugi", "x", func(a *data.Account) { a.Score = 1600 })
	seedAccount(t, s, "Joey", "x", func(a *data.Account) { a.Score = 900 })

	if score, match := s.FullScore("kaiba"); score != 1500 || match != 1300 {
		t.Errorf("FullScore() = (%d, %d), want (1500, 1300)", score, match)
	}
	if score := s.Score("nobody"); score != 1000 {
		t.Errorf("expected the default score for unregistered players, got %d", score)
	}

	ranks := map[string]int{"Yugi": 1, "Kaiba": 2, "Joey": 3, "nobody": 0}
	for name, want := range ranks {
		if got := s.Rank(name); got != want {
			t.Errorf("Rank(%s) = %d, want %d", name, got, want)
		}
	}
}

func TestService_RecordResult(t *testing.T) {
	s := newTestService(t)
	seedAccount(t, s, "Kaiba", "x", nil)
	seedAccount(t, s, "Yugi", "x", nil)

	// Prime the cache so the update has something to invalidate.
	s.FullScore("Kaiba")

	if err := s.RecordResult("Yugi", "Kaiba", false); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	if score := s.Score("Yugi"); score != 1016 {
		t.Errorf("expected winner score 1016, got %d", score)
	}
	if score := s.Score("Kaiba"); score != 984 {
		t.Errorf("expected loser score 984, got %d", score)
	}

	if err := s.RecordResult("Yugi", "Kaiba", true); err != nil {
		t.Fatalf("RecordResult() error = %v", err)
	}
	if _, match := s.FullScore("Yugi"); match != 1016 {
		t.Errorf("expected winner match score 1016, got %d", match)
	}

	account, _ := data.FindAccountByUsername(s.DB, "yugi")
	if account.Wins != 2 {
		t.Errorf("expected 2 wins, got %d", account.Wins)
	}

	// Unregistered players do not affect the ladder.
	if err := s.RecordResult("Yugi", "Ghost", false); err != nil {
		t.Errorf("RecordResult() with an unregistered loser error = %v", err)
	}
}

func TestEloDelta(t *testing.T) {
	tests := []struct {
		winner, loser, want int
	}{
		{1000, 1000, 16},
		{1400, 1000, 3},
		{1000, 1400, 29},
	}
	for _, tt := range tests {
		if got := eloDelta(tt.winner, tt.loser, 32); got != tt.want {
			t.Errorf("eloDelta(%d, %d) = %d, want %d", tt.winner, tt.loser, got, tt.want)
		}
	}
}

func TestExpectedScore(t *testing.T) {
	tests := []struct {
		a, b int
		want float64
	}{
		{1000, 1000, 0.5},
		{1400, 1000, 10.0 / 11},
		{1000, 1400, 1.0 / 11},
	}
	for _, tt := range tests {
		if got := ExpectedScore(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ExpectedScore(%d, %d) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}
