// useradmin manages user accounts directly in the database.
//
// Usage:
//
//	go run ./cmd/useradmin add <username> <email>
//	go run ./cmd/useradmin delete <username>
//	go run ./cmd/useradmin changepw <username> [password]
//	go run ./cmd/useradmin list
//
// add and changepw generate a password from the client alphabet when
// none is given and print it once; it is stored only as a bcrypt hash.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/teaandpython/wodserver/internal/auth"
	"github.com/teaandpython/wodserver/internal/config"
	"github.com/teaandpython/wodserver/internal/db"
	"github.com/teaandpython/wodserver/internal/model"
)

const ConfigPath = "config/gameserver.yaml"

type command struct {
	name     string
	username string
	email    string
	password string
}

func main() {
	cmd, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		printUsage()
		os.Exit(2)
	}
	if cmd.name == "" {
		printUsage()
		return
	}
	if err := run(context.Background(), cmd); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// parseArgs validates the subcommand and its arguments.
func parseArgs(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, nil
	}
	cmd := command{name: args[0]}
	rest := args[1:]
	switch cmd.name {
	case "add":
		if len(rest) != 2 {
			return command{}, fmt.Errorf("add needs <username> <email>")
		}
		cmd.username, cmd.email = rest[0], rest[1]
	case "delete":
		if len(rest) != 1 {
			return command{}, fmt.Errorf("delete needs <username>")
		}
		cmd.username = rest[0]
	case "changepw":
		if len(rest) < 1 || len(rest) > 2 {
			return command{}, fmt.Errorf("changepw needs <username> [password]")
		}
		cmd.username = rest[0]
		if len(rest) == 2 {
			cmd.password = rest[1]
		}
	case "list":
		if len(rest) != 0 {
			return command{}, fmt.Errorf("list takes no arguments")
		}
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.name)
	}
	return cmd, nil
}

func run(ctx context.Context, cmd command) error {
	_ = godotenv.Load()

	cfgPath := ConfigPath
	if p := os.Getenv("WOD_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadGameServer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	switch cmd.name {
	case "add":
		return addUser(ctx, database, cmd.username, cmd.email)
	case "delete":
		return deleteUser(ctx, database, cmd.username)
	case "changepw":
		return changePassword(ctx, database, cmd.username, cmd.password)
	case "list":
		return listUsers(ctx, database)
	}
	return nil
}

func addUser(ctx context.Context, d *db.DB, username, email string) error {
	taken, err := d.ExistsByUsername(ctx, username)
	if err != nil {
		return err
	}
	if taken {
		return fmt.Errorf("user %q already exists", username)
	}

	password := auth.GeneratePassword()
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	u := model.User{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
		Score:        model.DefaultScore,
		LastActive:   time.Now().Unix(),
		Items:        []string{},
		Stats:        model.DefaultStats(),
	}
	if err := d.InsertUser(ctx, u); err != nil {
		return err
	}
	fmt.Printf("user %q added, password: %s\n", username, password)
	return nil
}

func deleteUser(ctx context.Context, d *db.DB, username string) error {
	if err := d.DeleteUser(ctx, username); err != nil {
		return err
	}
	fmt.Printf("user %q deleted\n", username)
	return nil
}

func changePassword(ctx context.Context, d *db.DB, username, password string) error {
	exists, err := d.ExistsByUsername(ctx, username)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("user %q does not exist", username)
	}

	if password == "" {
		password = auth.GeneratePassword()
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := d.SetPasswordHash(ctx, username, hash); err != nil {
		return err
	}
	fmt.Printf("password for %q updated: %s\n", username, password)
	return nil
}

func listUsers(ctx context.Context, d *db.DB) error {
	users, err := d.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		fmt.Printf("%s: %d (games %d, wins %d)\n", u.Username, u.Score, u.Games, u.Wins)
	}
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `useradmin — manage user accounts

commands:
  add <username> <email>        create an account, print its password
  delete <username>             remove an account
  changepw <username> [pw]      set or regenerate a password
  list                          print every user with score and record`)
}
