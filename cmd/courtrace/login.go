package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// newLoginCmd builds the interactive CLI login subcommand: it drives
// the same Session Authenticator and login-session bridge the facade
// exposes to a chat bot or admin API, just reading username, password,
// and (when a captcha image is published) its code from stdin instead.
func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Interactively log in and save a session cookie",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := buildRoot()
			if err != nil {
				return err
			}
			defer root.Close()

			reader := bufio.NewReader(os.Stdin)
			username := prompt(reader, "username: ")
			password := prompt(reader, "password: ")

			ctx := cmd.Context()
			view, err := root.facade.StartLoginSession(ctx, username, password)
			if err != nil {
				return err
			}

			for view.Status == "awaiting_captcha" || view.Status == "pending" {
				if view.Status == "awaiting_captcha" {
					path, err := saveCaptchaImage(view.CaptchaPNG)
					if err != nil {
						return err
					}
					fmt.Printf("captcha image saved to %s\n", path)
					code := prompt(reader, "captcha code: ")
					view, err = root.facade.SubmitLoginSessionCode(ctx, view.SessionID, code)
					if err != nil {
						return err
					}
					continue
				}
				view, err = root.facade.LoginStatus(view.SessionID)
				if err != nil {
					return err
				}
			}

			if view.Status != "success" {
				return fmt.Errorf("login failed: %s", view.Message)
			}
			fmt.Println("login succeeded, session saved")
			return nil
		},
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func saveCaptchaImage(png []byte) (string, error) {
	f, err := os.CreateTemp("", "courtrace-captcha-*.png")
	if err != nil {
		return "", fmt.Errorf("login: save captcha image: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(png); err != nil {
		return "", fmt.Errorf("login: write captcha image: %w", err)
	}
	return f.Name(), nil
}
