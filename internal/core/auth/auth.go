package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/checkmate-server/lobby/internal/core"
	"github.com/checkmate-server/lobby/internal/core/bytes"
	"github.com/checkmate-server/lobby/internal/core/cache"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/core/data"
	"github.com/checkmate-server/lobby/internal/packets"
)

var (
	ErrUnknown            = errors.New("an unexpected error occurred, please contact your server administrator")
	ErrInvalidCredentials = errors.New("username/combination password not found")
	ErrAccountBanned      = errors.New("this account has been suspended")
	ErrAccountNotFound    = errors.New("account not found")
	ErrInvalidUsername    = errors.New("invalid username")
)

// Chat colors handed to logged in players.
const (
	ColorDefault = 0
	ColorAdmin   = 1
)

// Separates the name from the password in a login credential.
const credentialSeparator = "$"

// Overridden by tests.
var (
	findAccount   = data.FindAccountByUsername
	createAccount = data.CreateAccount
	updateAccount = data.UpdateAccount
)

// LoginResult is the ruling on a login attempt.
type LoginResult struct {
	Name  string
	State client.LoginState
	Color int
}

// Service authenticates players and serves their ladder standing.
type Service struct {
	DB     *gorm.DB
	Logger *logrus.Logger

	defaultScore int
	kFactor      int
	scores       *cache.Cache
}

func NewService(db *gorm.DB, logger *logrus.Logger, cfg *core.Config) *Service {
	return &Service{
		DB:           db,
		Logger:       logger,
		defaultScore: cfg.Scores.DefaultScore,
		kFactor:      cfg.Scores.KFactor,
		scores:       cache.New(cfg.Scores.CacheTTL),
	}
}

// SplitCredential separates "name$password" into its parts. The password is
// empty when the separator is missing.
func SplitCredential(credential string) (string, string) {
	name, password, _ := strings.Cut(credential, credentialSeparator)
	return strings.TrimSpace(name), password
}

// ValidName reports whether name can be shown to other players and registered.
func ValidName(name string) bool {
	if strings.TrimSpace(name) == "" || utf8.RuneCountInString(name) > packets.NameLength-1 {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) || r == '$' {
			return false
		}
	}
	return true
}

// Login rules on a "name" or "name$password" credential coming from ip.
// Unknown names with a password are registered on the spot.
func (s *Service) Login(credential, ip string) LoginResult {
	name, password := SplitCredential(credential)
	if !ValidName(name) {
		return LoginResult{Name: name, State: client.InvalidUsername, Color: ColorDefault}
	}

	account, err := s.VerifyAccount(name, password)
	switch {
	case errors.Is(err, ErrUnknown):
		return LoginResult{Name: name, State: client.Unranked, Color: ColorDefault}
	case errors.Is(err, ErrAccountNotFound) && password == "":
		return LoginResult{Name: name, State: client.Unranked, Color: ColorDefault}
	case errors.Is(err, ErrAccountNotFound):
		account, err = s.CreateAccount(name, password, ip)
		if err != nil {
			s.Logger.Warnf("[AUTH] error registering %s: %v", name, err)
			return LoginResult{Name: name, State: client.Unranked, Color: ColorDefault}
		}
		s.Logger.Infof("[AUTH] registered new account %s from %s", account.DisplayName, ip)
		return LoginResult{Name: account.DisplayName, State: client.Authenticated, Color: ColorDefault}
	case errors.Is(err, ErrAccountBanned):
		return LoginResult{Name: name, State: client.InvalidUsername, Color: ColorDefault}
	case password == "":
		return LoginResult{Name: account.DisplayName, State: client.NoPassword, Color: ColorDefault}
	case err != nil:
		return LoginResult{Name: account.DisplayName, State: client.InvalidPassword, Color: ColorDefault}
	}

	account.LastIP = ip
	if err := updateAccount(s.DB, account); err != nil {
		s.Logger.Warnf("[AUTH] error recording login of %s: %v", account.DisplayName, err)
	}
	return LoginResult{Name: account.DisplayName, State: client.Authenticated, Color: colorOf(account)}
}

func colorOf(account *data.Account) int {
	if account.GM {
		return ColorAdmin
	}
	return ColorDefault
}

// VerifyAccount checks the Accounts table for the specified credentials
// combination and validates that the account is accessible. The account is
// also returned with ErrAccountBanned and ErrInvalidCredentials.
func (s *Service) VerifyAccount(username, password string) (*data.Account, error) {
	account, err := findAccount(s.DB, client.FoldName(username))
	if err != nil {
		s.Logger.Warnf("[AUTH] error looking up account %s: %v", username, err)
		return nil, ErrUnknown
	}

	switch {
	case account == nil:
		return nil, ErrAccountNotFound
	case account.Banned:
		return account, ErrAccountBanned
	case account.Password != HashPassword(password):
		return account, ErrInvalidCredentials
	}
	return account, nil
}

// CreateAccount takes the specified credentials and creates a new record in
// the database, returning either the result or any errors encountered.
func (s *Service) CreateAccount(username, password, ip string) (*data.Account, error) {
	if !ValidName(username) {
		return nil, ErrInvalidUsername
	}

	account := &data.Account{
		Username:         client.FoldName(username),
		DisplayName:      strings.TrimSpace(username),
		Password:         HashPassword(password),
		Score:            s.defaultScore,
		MatchScore:       s.defaultScore,
		LastIP:           ip,
		RegistrationDate: time.Now(),
	}

	if err := createAccount(s.DB, account); err != nil {
		return nil, err
	}

	return account, nil
}

type fullScore struct {
	score      int
	matchScore int
}

// Score returns the ladder score of name.
func (s *Service) Score(name string) int {
	score, _ := s.FullScore(name)
	return score
}

// FullScore returns the single/tag and match ladder scores of name.
// Unregistered players get the default score.
func (s *Service) FullScore(name string) (int, int) {
	key := "score:" + client.FoldName(name)
	if v, ok := s.scores.Get(key); ok {
		fs := v.(fullScore)
		return fs.score, fs.matchScore
	}

	fs := fullScore{score: s.defaultScore, matchScore: s.defaultScore}
	account, err := findAccount(s.DB, client.FoldName(name))
	if err != nil {
		s.Logger.Warnf("[AUTH] error fetching score of %s: %v", name, err)
		return fs.score, fs.matchScore
	}
	if account != nil {
		fs = fullScore{score: account.Score, matchScore: account.MatchScore}
	}
	s.scores.Put(key, fs, 0)
	return fs.score, fs.matchScore
}

// Rank returns the ladder position of name, or 0 for unregistered players.
func (s *Service) Rank(name string) int {
	key := "rank:" + client.FoldName(name)
	if v, ok := s.scores.Get(key); ok {
		return v.(int)
	}

	account, err := findAccount(s.DB, client.FoldName(name))
	if err != nil || account == nil {
		return 0
	}
	above, err := data.CountAccountsAbove(s.DB, account.Score)
	if err != nil {
		s.Logger.Warnf("[AUTH] error computing rank of %s: %v", name, err)
		return 0
	}
	rank := int(above) + 1
	s.scores.Put(key, rank, 0)
	return rank
}

// RecordResult applies an Elo update for a finished duel. Players without an
// account are skipped. Match duels move the match score instead of the score.
func (s *Service) RecordResult(winner, loser string, match bool) error {
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		w, err := findAccount(tx, client.FoldName(winner))
		if err != nil {
			return err
		}
		l, err := findAccount(tx, client.FoldName(loser))
		if err != nil {
			return err
		}
		if w == nil || l == nil {
			return nil
		}

		wScore, lScore := &w.Score, &l.Score
		if match {
			wScore, lScore = &w.MatchScore, &l.MatchScore
		}
		delta := eloDelta(*wScore, *lScore, s.kFactor)
		*wScore += delta
		*lScore -= delta
		w.Wins++
		l.Losses++

		if err := updateAccount(tx, w); err != nil {
			return err
		}
		return updateAccount(tx, l)
	})
	if err != nil {
		return fmt.Errorf("recording result %s vs %s: %w", winner, loser, err)
	}

	// Every rank may have shifted, so only the two scores are evicted and
	// ranks are left to expire.
	s.scores.Delete("score:" + client.FoldName(winner))
	s.scores.Delete("score:" + client.FoldName(loser))
	return nil
}

// ExpectedScore is the Elo probability that a player rated a beats one rated b.
func ExpectedScore(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// eloDelta is the number of points the winner takes from the loser.
func eloDelta(winner, loser, k int) int {
	return int(math.Round(float64(k) * (1 - ExpectedScore(winner, loser))))
}

// HashPassword returns a version of password with the server's chosen hashing strategy.
func HashPassword(password string) string {
	hash := sha256.New()
	hash.Write(bytes.StripPadding([]byte(password)))
	return hex.EncodeToString(hash.Sum(nil)[:])
}
