package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"site-gateway/internal/apiclient"
	"site-gateway/internal/model"
	"site-gateway/internal/runtimeconfig"
	"site-gateway/internal/utils"
	"site-gateway/internal/widget"
)

const clientTimeout = 30 * time.Second

// newSiteClient builds a client execution context: its runtime config comes
// from what the site serves, not from this process's environment.
func newSiteClient(ctx context.Context, siteURL string) (*apiclient.Client, error) {
	httpClient := utils.NewHTTPClient(clientTimeout)
	src, err := apiclient.FetchRuntimeConfig(ctx, httpClient, siteURL)
	if err != nil {
		return nil, errors.Wrapf(err, "site %s", siteURL)
	}
	return apiclient.New(siteURL, runtimeconfig.NewProvider(src), httpClient), nil
}

func addSiteFlag(cmd *cobra.Command, site *string) {
	cmd.Flags().StringVar(site, "site", "http://localhost:3000", "site origin")
}

func newChatCommand() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the site assistant from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			client, err := newSiteClient(cmd.Context(), site)
			if err != nil {
				return err
			}

			session := widget.NewSession(client)
			out := cmd.OutOrStdout()
			interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())

			for _, m := range session.Messages() {
				fmt.Fprintf(out, "%s: %s\n", m.Role, m.Content)
			}

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				if interactive {
					fmt.Fprint(out, "> ")
				}
				if !scanner.Scan() {
					return scanner.Err()
				}

				msg, err := session.Send(cmd.Context(), scanner.Text())
				if errors.Is(err, widget.ErrNothingToSend) {
					continue
				}
				fmt.Fprintf(out, "%s: %s\n", msg.Role, msg.Content)
				if label := widget.StateLabel(session.CurrentState()); label != "" && interactive {
					fmt.Fprintf(out, "  %s\n", label)
				}
			}
		},
	}
	addSiteFlag(cmd, &site)
	return cmd
}

func newHealthCommand() *cobra.Command {
	var site string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check that the REST backend used by the site is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			client, err := newSiteClient(cmd.Context(), site)
			if err != nil {
				return err
			}
			if !client.HealthCheck(cmd.Context()) {
				return errors.New("backend is not healthy")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	addSiteFlag(cmd, &site)
	return cmd
}

func newSubscribeCommand() *cobra.Command {
	var site, email string
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Subscribe an email address to the newsletter",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			if email == "" {
				return errors.New("--email is required")
			}
			client, err := newSiteClient(cmd.Context(), site)
			if err != nil {
				return err
			}
			resp, err := client.SubscribeNewsletter(cmd.Context(), model.NewsletterPayload{Email: email})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
	addSiteFlag(cmd, &site)
	cmd.Flags().StringVar(&email, "email", "", "email address")
	return cmd
}
