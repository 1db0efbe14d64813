// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/quartermaster-backup/quartermaster/cmd/quartermaster/cli"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/secret"
	"github.com/quartermaster-backup/quartermaster/lib/vault"
)

func vaultCommand() *cli.Command {
	return &cli.Command{
		Name:    "vault",
		Summary: "Manage the key that seals stored passwords",
		Description: `Database passwords and S3 secret keys may be stored sealed with an
age identity kept in vault.key_file (default <config>/.vault_key).
Sealed values start with "enc:" and are decrypted only when needed.`,
		Subcommands: []*cli.Command{
			vaultInitCommand(),
			vaultSealCommand(),
			vaultSetPasswordCommand(),
			vaultRotateCommand(),
		},
	}
}

type vaultParams struct {
	configParams
}

func vaultInitCommand() *cli.Command {
	var params vaultParams
	return &cli.Command{
		Name:    "init",
		Summary: "Generate a new vault key",
		Usage:   "quartermaster vault init [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("init", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster vault init"); err != nil {
				return err
			}
			cfg, err := params.load()
			if err != nil {
				return err
			}
			v, err := vault.Init(cfg.Vault.KeyFile)
			if err != nil {
				return err
			}
			defer v.Close()
			fmt.Fprintf(cli.Stdout, "created %s\nrecipient %s\n", v.Path(), v.Recipient())
			return nil
		},
	}
}

// openVault loads the configuration and its vault key. The caller
// closes the vault.
func openVault(params configParams) (*config.Config, *vault.Vault, error) {
	cfg, err := params.load()
	if err != nil {
		return nil, nil, err
	}
	v, err := vault.Open(cfg.Vault.KeyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("%w (run \"quartermaster vault init\" first)", err)
	}
	return cfg, v, nil
}

func vaultSealCommand() *cli.Command {
	var params vaultParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Seal every plaintext database password in databases.yaml",
		Usage:   "quartermaster vault seal [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("seal", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster vault seal"); err != nil {
				return err
			}
			cfg, v, err := openVault(params.configParams)
			if err != nil {
				return err
			}
			defer v.Close()

			changed, err := cfg.SealPasswords(v)
			if err != nil {
				return err
			}
			if changed {
				if err := cfg.SaveDatabases(); err != nil {
					return err
				}
				fmt.Fprintf(cli.Stdout, "sealed passwords in %s\n", cfg.DatabasesPath())
			} else {
				fmt.Fprintln(cli.Stdout, "all database passwords already sealed")
			}
			for _, target := range cfg.Mirror.Targets {
				if target.SecretAccessKey != "" && !vault.IsSealed(target.SecretAccessKey) {
					fmt.Fprintf(cli.Stderr, "warning: mirror target %s has a plaintext secret_access_key in %s\n",
						target.Name, cfg.SettingsPath())
				}
			}
			return nil
		},
	}
}

func vaultSetPasswordCommand() *cli.Command {
	var params vaultParams
	return &cli.Command{
		Name:    "set-password",
		Summary: "Prompt for a database password and store it sealed",
		Usage:   "quartermaster vault set-password <database> [flags]",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("set-password", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 1, 1, "quartermaster vault set-password <database>"); err != nil {
				return err
			}
			cfg, v, err := openVault(params.configParams)
			if err != nil {
				return err
			}
			defer v.Close()
			if _, ok := cfg.Database(args[0]); !ok {
				return cli.Validation("unknown database %q", args[0])
			}

			password, err := secret.ReadPassword(fmt.Sprintf("Password for %s: ", args[0]))
			if err != nil {
				return err
			}
			sealed, err := v.Seal(password.Bytes())
			password.Close()
			if err != nil {
				return err
			}
			if err := cfg.SetDatabasePassword(args[0], sealed); err != nil {
				return err
			}
			if err := cfg.SaveDatabases(); err != nil {
				return err
			}
			fmt.Fprintf(cli.Stdout, "stored sealed password for %s\n", args[0])
			return nil
		},
	}
}

func vaultRotateCommand() *cli.Command {
	var params vaultParams
	return &cli.Command{
		Name:    "rotate",
		Summary: "Replace the vault key and re-seal stored secrets",
		Usage:   "quartermaster vault rotate [flags]",
		Description: `Rotate generates a new key, re-seals every sealed database password,
and rewrites databases.yaml. The previous key is kept with an ".old"
suffix. Sealed S3 secret keys are printed re-sealed so they can be
pasted into settings.yaml, which is never rewritten.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("rotate", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.RequireArgs(args, 0, 0, "quartermaster vault rotate"); err != nil {
				return err
			}
			cfg, v, err := openVault(params.configParams)
			if err != nil {
				return err
			}

			values := make(map[string]string)
			for _, database := range cfg.Databases {
				if vault.IsSealed(database.Password) {
					values["database/"+database.Name] = database.Password
				}
			}
			for _, target := range cfg.Mirror.Targets {
				if vault.IsSealed(target.SecretAccessKey) {
					values["mirror/"+target.Name] = target.SecretAccessKey
				}
			}

			next, err := v.Rotate(values)
			if err != nil {
				v.Close()
				return err
			}
			defer next.Close()

			var mirrors []string
			for key, value := range values {
				kind, name, _ := strings.Cut(key, "/")
				switch kind {
				case "database":
					if err := cfg.SetDatabasePassword(name, value); err != nil {
						return err
					}
				case "mirror":
					mirrors = append(mirrors, fmt.Sprintf("  %s: secret_access_key: %s", name, value))
				}
			}
			if err := cfg.SaveDatabases(); err != nil {
				return fmt.Errorf("key rotated but %s was not saved (old key kept at %s.old): %w",
					cfg.DatabasesPath(), next.Path(), err)
			}
			fmt.Fprintf(cli.Stdout, "rotated %s (%d values re-sealed)\nrecipient %s\n",
				next.Path(), len(values), next.Recipient())
			if len(mirrors) > 0 {
				sort.Strings(mirrors)
				fmt.Fprintf(cli.Stdout, "\nupdate these mirror targets in %s:\n%s\n",
					cfg.SettingsPath(), strings.Join(mirrors, "\n"))
			}
			return nil
		},
	}
}
