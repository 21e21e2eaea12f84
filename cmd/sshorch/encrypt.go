package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"sshOrchestrator/internal/config"
	"sshOrchestrator/internal/crypto"
)

func newEncryptCmd(a *app) *cobra.Command {
	var machineName string

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a private key passphrase with $SSHORCH_SECRET",
		Long: `Read a key passphrase from the terminal (or stdin) and print it encrypted with $SSHORCH_SECRET.
With --machine the encrypted value is stored as key.passphrase of that machine in the config file;
the previous file is kept as <config>.old.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cipher := a.cipher()
			if cipher == nil {
				secret, err := readSecret(cmd, "Secret: ")
				if err != nil {
					return err
				}
				cipher = crypto.NewCipher(secret)
			}

			passphrase, err := readSecret(cmd, "Key passphrase: ")
			if err != nil {
				return err
			}
			encrypted, err := cipher.Encrypt(passphrase)
			if err != nil {
				return err
			}

			if machineName == "" {
				fmt.Fprintln(cmd.OutOrStdout(), encrypted)
				return nil
			}

			// Bez nadpisań ze środowiska, żeby nie trafiły do pliku
			manager := config.NewManager(a.fs, a.configPath)
			if err := manager.Load(); err != nil {
				return err
			}
			_, index, err := manager.FindHostByName(machineName)
			if err != nil {
				return err
			}
			manager.Config().Machines[index].Key.Passphrase = encrypted
			if err := manager.Save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "passphrase of %s saved to %s\n", machineName, manager.GetConfigPath())
			return nil
		},
	}

	cmd.Flags().StringVarP(&machineName, "machine", "m", "", "store the result in the config entry of this machine")
	return cmd
}

// readSecret czyta wartość bez echa z terminala albo pierwszą linię ze stdin
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		value, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read from terminal: %v", err)
		}
		return string(value), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read from stdin: %v", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
