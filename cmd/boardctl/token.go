package main

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cobra"
)

type tokenOptions struct {
	secret   string
	ttl      time.Duration
	audience string
	issuer   string
}

type tokenResult struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func newTokenCommand(opts *RootOptions) *cobra.Command {
	topts := &tokenOptions{}
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Mint an HS256 token accepted in AUTH0_TEST_MODE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tok, err := testToken(args[0], topts, time.Now())
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), opts, tok, tokenResult{UserID: args[0], Token: tok})
		},
	}
	cmd.Flags().StringVar(&topts.secret, "secret", os.Getenv("TEST_JWT_SECRET"), "signing secret (defaults to $TEST_JWT_SECRET)")
	cmd.Flags().DurationVar(&topts.ttl, "ttl", time.Hour, "token lifetime")
	cmd.Flags().StringVar(&topts.audience, "audience", "", "aud claim")
	cmd.Flags().StringVar(&topts.issuer, "issuer", "", "iss claim")
	return cmd
}

// testToken returns a signed JWT suitable for test mode authentication.
func testToken(userID string, opts *tokenOptions, now time.Time) (string, error) {
	if opts.secret == "" {
		return "", errors.New("TEST_JWT_SECRET must be set")
	}
	if userID == "" {
		return "", errors.New("user id must not be empty")
	}
	if opts.ttl <= time.Minute {
		return "", errors.New("ttl must be longer than one minute")
	}
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(opts.ttl).Unix(),
	}
	if opts.audience != "" {
		claims["aud"] = opts.audience
	}
	if opts.issuer != "" {
		claims["iss"] = opts.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(opts.secret))
}
