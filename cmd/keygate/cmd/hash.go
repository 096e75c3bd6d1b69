package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tgrimes/keygate/password"
)

var hashVerify string

// hashCmd hashes a password read from stdin, for seeding accounts or
// checking a digest offline.
var hashCmd = &cobra.Command{
	Use:   "hash",
	Short: "Hash a password read from stdin with Argon2id",
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading password: %w", err)
		}
		secret := strings.TrimRight(line, "\r\n")

		if hashVerify != "" {
			if password.Verify(secret, hashVerify) {
				fmt.Println("match")
				return nil
			}
			fmt.Println("no match")
			os.Exit(1)
		}

		digest, err := password.Hash(secret, password.DefaultParams())
		if err != nil {
			return err
		}
		fmt.Println(digest)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.Flags().StringVar(&hashVerify, "verify", "", "Verify the password against this digest instead of hashing")
}
