package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/luchaneitor/tecnoacceso-web/internal/config"
	"github.com/luchaneitor/tecnoacceso-web/internal/gateway"
	"github.com/luchaneitor/tecnoacceso-web/internal/operator"
	"github.com/luchaneitor/tecnoacceso-web/internal/records"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

// LoginCommand authenticates against the panel server and stores the session
// credentials. Username and password are prompted for when not given as args.
func LoginCommand(cfg *config.Config, args []string) error {
	username, password, err := credentialsFromArgs(args)
	if err != nil {
		return err
	}

	gw := gateway.NewHTTPClient(cfg.ServerURL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	session, err := operator.Login(ctx, gw, username, password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := operator.Save(cfg.CredentialsPath, session); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}

	// Best effort; the session is valid even if the log append fails.
	if _, err := gw.AppendLog(ctx, records.Log{
		Action:   "Operator logged in",
		Category: records.CategoryAuth,
		Operator: session.Username,
		Outcome:  records.OutcomeSuccess,
	}); err != nil {
		logger.Debugf("login: log append failed: %v", err)
	}

	fmt.Printf("Welcome, %s (%s)\n", session.DisplayName, session.Role)
	return nil
}

// LogoutCommand clears the stored session.
func LogoutCommand(cfg *config.Config) error {
	session, ok, err := operator.Load(cfg.CredentialsPath)
	if err != nil {
		// A corrupt credentials file still gets cleared.
		logger.Warnf("logout: %v", err)
	}
	if ok {
		gw := gateway.NewHTTPClient(cfg.ServerURL, session.Token)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := gw.AppendLog(ctx, records.Log{
			Action:   "Operator logged out",
			Category: records.CategoryAuth,
			Operator: session.Username,
			Outcome:  records.OutcomeSuccess,
		}); err != nil {
			logger.Debugf("logout: log append failed: %v", err)
		}
	}

	if err := operator.Clear(cfg.CredentialsPath); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

func credentialsFromArgs(args []string) (username, password string, err error) {
	if len(args) > 0 {
		username = args[0]
	}
	if len(args) > 1 {
		password = args[1]
	}

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		username = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Print("Password: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", err
		}
		password = strings.TrimSpace(line)
	}
	if username == "" || password == "" {
		return "", "", fmt.Errorf("username and password are required")
	}
	return username, password, nil
}
