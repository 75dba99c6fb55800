package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nhle/costdesk/internal/api"
	"github.com/nhle/costdesk/internal/model"
	"github.com/nhle/costdesk/internal/otp"
	"github.com/nhle/costdesk/internal/validate"
)

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and remember the session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			var password string
			form := huh.NewForm(huh.NewGroup(
				huh.NewInput().Title("Email").Value(&email).Validate(validate.Email),
				huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).
					Value(&password).Validate(validate.Required("password")),
			))
			if err := form.Run(); err != nil {
				return err
			}

			sess, err := d.session.Login(cmd.Context(), strings.TrimSpace(email), password)
			if err != nil {
				return errors.New(api.UserMessage(err, model.RoleViewer))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s).\n", sess.Email, sess.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newRegisterCmd(flags *globalFlags) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account with an emailed verification code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			if err := promptEmail(&email); err != nil {
				return err
			}
			email = strings.TrimSpace(email)

			challenge, err := d.session.SendRegisterOTP(ctx, email)
			if err != nil {
				return errors.New(api.UserMessage(err, model.RoleViewer))
			}
			fmt.Fprintln(cmd.OutOrStdout(), challengeNotice(challenge))

			var sess *model.Session
			flow := otp.NewFlow(*challenge,
				func(ctx context.Context, code string) error {
					password, err := promptNewPassword()
					if err != nil {
						return err
					}
					sess, err = d.session.Register(ctx, email, password, code)
					return err
				},
				func(ctx context.Context) (*model.OTPChallenge, error) {
					return d.session.SendRegisterOTP(ctx, email)
				},
			)
			if err := runCodeFlow(ctx, cmd.OutOrStdout(), flow); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account created. Logged in as %s (%s).\n", sess.Email, sess.Role)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newForgotPasswordCmd(flags *globalFlags) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Reset the password with an emailed verification code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := cmd.Context()
			if err := promptEmail(&email); err != nil {
				return err
			}
			email = strings.TrimSpace(email)

			challenge, err := d.session.SendForgotPasswordOTP(ctx, email)
			if err != nil {
				return errors.New(api.UserMessage(err, model.RoleViewer))
			}
			fmt.Fprintln(cmd.OutOrStdout(), challengeNotice(challenge))

			flow := otp.NewFlow(*challenge,
				func(ctx context.Context, code string) error {
					password, err := promptNewPassword()
					if err != nil {
						return err
					}
					return d.session.ResetPassword(ctx, email, code, password)
				},
				func(ctx context.Context) (*model.OTPChallenge, error) {
					return d.session.SendForgotPasswordOTP(ctx, email)
				},
			)
			if err := runCodeFlow(ctx, cmd.OutOrStdout(), flow); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password reset. Log in with your new password.")
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			d.session.Logout()
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged in account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := setup(flags)
			if err != nil {
				return err
			}
			defer d.Close()

			sess, err := d.requireSession(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", sess.Email, sess.Role)
			return nil
		},
	}
}

func promptEmail(email *string) error {
	if validate.Email(*email) == nil {
		return nil
	}
	return huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Email").Value(email).Validate(validate.Email),
	)).Run()
}

func promptNewPassword() (string, error) {
	var password, confirm string
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("New password").EchoMode(huh.EchoModePassword).
			Value(&password).Validate(validate.Password),
		huh.NewInput().Title("Confirm password").EchoMode(huh.EchoModePassword).
			Value(&confirm).Validate(validate.Matches(&password, "passwords")),
	))
	if err := form.Run(); err != nil {
		return "", err
	}
	return password, nil
}

func challengeNotice(ch *model.OTPChallenge) string {
	msg := ch.Message
	if msg == "" {
		msg = "A verification code was sent to your email."
	}
	return fmt.Sprintf("%s It expires in %s.", msg, otp.Countdown{ExpiresAt: ch.ExpiresAt}.Label(time.Now()))
}

// runCodeFlow prompts for codes until one is accepted. An expired code
// offers a resend.
func runCodeFlow(ctx context.Context, out io.Writer, flow *otp.Flow) error {
	for {
		var code string
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Verification code").Value(&code).Validate(otp.ValidateCode),
		))
		if err := form.Run(); err != nil {
			return err
		}

		err := flow.Submit(ctx, strings.TrimSpace(code), time.Now())
		switch {
		case err == nil:
			return nil
		case errors.Is(err, huh.ErrUserAborted):
			return err
		case errors.Is(err, otp.ErrExpired):
			resend := true
			confirm := huh.NewConfirm().Title("Code expired. Send a new one?").Value(&resend)
			if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
				return err
			}
			if !resend {
				return otp.ErrExpired
			}
			ch, err := flow.Resend(ctx, time.Now())
			if err != nil {
				return errors.New(api.UserMessage(err, model.RoleViewer))
			}
			flow.Restart(*ch)
			fmt.Fprintln(out, challengeNotice(ch))
		default:
			fmt.Fprintln(out, api.UserMessage(err, model.RoleViewer))
		}
	}
}
