package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aryamantandon18/connectly/internal/models"
	"github.com/aryamantandon18/connectly/internal/syncer"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

type targetFlags struct {
	serverID       string
	channelID      string
	conversationID string
}

func (t *targetFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&t.serverID, "server-id", "", "server the channel belongs to")
	cmd.Flags().StringVar(&t.channelID, "channel", "", "channel id")
	cmd.Flags().StringVar(&t.conversationID, "conversation", "", "direct-message conversation id")
}

func (t *targetFlags) container() (models.Container, error) {
	switch {
	case t.channelID != "" && t.conversationID != "":
		return models.Container{}, errors.New("use either --channel or --conversation")
	case t.channelID != "":
		return models.ChannelContainer(t.serverID, t.channelID), nil
	case t.conversationID != "":
		return models.ConversationContainer(t.conversationID), nil
	}
	return models.Container{}, errors.New("--channel or --conversation is required")
}

func newLoginCommand(opts *globalOptions) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := syncer.NewHTTPClient(opts.server, "").Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.AccessToken)
			fmt.Fprintf(cmd.ErrOrStderr(), "logged in as %s (%s)\n", res.User.Name, res.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", os.Getenv("CONNECTLY_PASSWORD"), "account password")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newSendCommand(opts *globalOptions) *cobra.Command {
	var target targetFlags
	var filePath string

	cmd := &cobra.Command{
		Use:   "send [content]",
		Short: "Send a message, optionally with an attachment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := target.container()
			if err != nil {
				return err
			}
			var content string
			if len(args) == 1 {
				content = args[0]
			}

			var file io.Reader
			var name string
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return err
				}
				defer f.Close()
				file, name = f, filepath.Base(filePath)
			}

			m, err := syncer.NewHTTPClient(opts.server, opts.token).Send(cmd.Context(), c, content, name, file)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), m.ID)
			return nil
		},
	}
	target.bind(cmd)
	cmd.Flags().StringVarP(&filePath, "file", "f", "", "attachment to upload")
	return cmd
}

// subjectOf reads the profile id from a session token without verifying it;
// the server verifies it on every request.
func subjectOf(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return claims.Subject, nil
}
