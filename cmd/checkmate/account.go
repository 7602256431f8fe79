package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/checkmate-server/lobby/internal/core/auth"
	"github.com/checkmate-server/lobby/internal/core/client"
	"github.com/checkmate-server/lobby/internal/core/data"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account management tools",
}

var accountAddCmd = &cobra.Command{
	Use:   "add [name] [password]",
	Short: "Registers a new account",
	Run:   AccountAddCommand,
}

var accountGMCmd = &cobra.Command{
	Use:   "gm [name]",
	Short: "Grants GM to an account",
	Run:   AccountGMCommand,
}

var accountBanCmd = &cobra.Command{
	Use:   "ban [name]",
	Short: "Bans an account",
	Run:   AccountBanCommand,
}

var accountListCmd = &cobra.Command{
	Use:   "list",
	Short: "Prints the top accounts by score",
	Run:   AccountListCommand,
}

var (
	RevokeFlag bool
	LimitFlag  int
)

func initDB() *gorm.DB {
	db, err := data.Initialize(loadConfig())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return db
}

func AccountAddCommand(cmd *cobra.Command, args []string) {
	config := loadConfig()
	db, err := data.Initialize(config)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer data.Shutdown(db)

	name, args := popArg(args, "Name")
	password, _ := popArg(args, "Password")

	account, err := findAccount(db, name)
	if err != nil {
		fmt.Println(err)
		return
	} else if account != nil {
		fmt.Printf("account '%s' already exists; skipping\n", name)
		return
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	account, err = auth.NewService(db, logger, config).CreateAccount(name, password, "")
	if err != nil {
		fmt.Println("error creating account:", err)
		return
	}
	fmt.Printf("created account for '%s' (ID: %d)\n", account.DisplayName, account.ID)
}

func AccountGMCommand(cmd *cobra.Command, args []string) {
	updateFlag(args, "GM", func(account *data.Account) { account.GM = !RevokeFlag })
}

func AccountBanCommand(cmd *cobra.Command, args []string) {
	updateFlag(args, "banned", func(account *data.Account) { account.Banned = !RevokeFlag })
}

func updateFlag(args []string, flag string, apply func(account *data.Account)) {
	db := initDB()
	defer data.Shutdown(db)

	name, _ := popArg(args, "Name")
	account, err := findAccount(db, name)
	if err != nil {
		fmt.Println(err)
		return
	} else if account == nil {
		fmt.Printf("no account named '%s'\n", name)
		return
	}

	apply(account)
	if err := data.UpdateAccount(db, account); err != nil {
		fmt.Println("error updating account:", err)
		return
	}
	fmt.Printf("%s: %s=%v\n", account.DisplayName, flag, !RevokeFlag)
}

func AccountListCommand(cmd *cobra.Command, args []string) {
	db := initDB()
	defer data.Shutdown(db)

	accounts, err := data.TopAccounts(db, LimitFlag)
	if err != nil {
		fmt.Println("error listing accounts:", err)
		return
	}
	for i, account := range accounts {
		fmt.Printf("%3d. %-20s %5d (match %d) %d-%d\n",
			i+1, account.DisplayName, account.Score, account.MatchScore, account.Wins, account.Losses)
	}
}

func popArg(args []string, prompt string) (string, []string) {
	if len(args) == 1 {
		return args[0], nil
	} else if len(args) > 1 {
		return args[0], args[1:]
	}

	fmt.Printf("%s: ", prompt)
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text()), args
}

func findAccount(db *gorm.DB, name string) (*data.Account, error) {
	account, err := data.FindAccountByUsername(db, client.FoldName(name))
	if err != nil {
		return nil, fmt.Errorf("error looking up account: %v", err)
	}
	return account, nil
}
