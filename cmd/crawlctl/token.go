package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/citycrawl/crawl/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a development identity token",
	Long:  "Signs a token the API accepts, using JWT_SECRET and JWT_ISSUER from the environment.",
	RunE:  runToken,
}

var (
	tokenUser   string
	tokenEmail  string
	tokenName   string
	tokenTTL    time.Duration
	tokenIssuer string
)

var hashCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASH",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(hash))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "", "User ID (required)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "Email claim")
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "Name claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	tokenCmd.Flags().StringVar(&tokenIssuer, "issuer", "", "Issuer (overrides JWT_ISSUER)")
	if err := tokenCmd.MarkFlagRequired("user"); err != nil {
		panic(fmt.Sprintf("failed to mark user flag as required: %v", err))
	}

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(hashCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return errors.New("JWT_SECRET is not set")
	}
	issuer := tokenIssuer
	if issuer == "" {
		issuer = os.Getenv("JWT_ISSUER")
	}
	if issuer == "" {
		issuer = "citycrawl"
	}

	tok, err := auth.NewService(secret, issuer, tokenTTL).Issue(auth.Identity{
		UserID: tokenUser,
		Email:  tokenEmail,
		Name:   tokenName,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), tok)
	return nil
}
