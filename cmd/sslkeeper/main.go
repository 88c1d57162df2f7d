package main

import (
	"fmt"
	"os"

	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

func main() {
	app := &cobra.Command{
		Use:     os.Args[0],
		Short:   "sslkeeper keeps your stack's TLS certificate valid",
		Version: dynversion.Version,
	}

	app.AddCommand(ensureEntry())
	app.AddCommand(statusEntry())
	app.AddCommand(validateEntry())
	app.AddCommand(inspectEntry())
	app.AddCommand(selfSignedEntry())
	app.AddCommand(renewEntry())
	app.AddCommand(importEntry())
	app.AddCommand(consolidateEntry())
	app.AddCommand(proxyPullEntry())
	app.AddCommand(proxyPushEntry())

	if err := app.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// flags shared by every command that needs a resolved config
func commonFlags(cmd *cobra.Command, opts *cliOptions) {
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "sslkeeper.json", "Config file (optional)")
	cmd.Flags().StringVarP(&opts.sslPath, "ssl-path", "", "", "Directory for certificate/key files")
	cmd.Flags().StringVarP(&opts.certName, "name", "n", "", "Base name for <name>.crt / <name>.key")
	cmd.Flags().StringVarP(&opts.email, "email", "e", "", "Contact email for the CA account")
	cmd.Flags().IntVarP(&opts.thresholdDays, "threshold", "t", 0, "Renewal threshold in days")
	cmd.Flags().BoolVarP(&opts.enforceDomain, "enforce-domain", "", false, "Treat domain mismatch as blocking")
}

func ensureEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "ensure [domain]",
		Short: "Make sure a usable certificate exists for the domain, acquiring or generating one if needed",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.domain = args[0]

			if err := ensure(osutil.CancelOnInterruptOrTerminate(nil), opts); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "Certificate provider: letsencrypt | self-signed")
	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "Replace even a currently valid certificate")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Allow interactive prompts (CA terms of service)")
	cmd.Flags().BoolVarP(&opts.agreeTOS, "agree-tos", "", false, "Agree to the CA's terms of service non-interactively")

	return cmd
}

func statusEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "status [domain]",
		Short: "Show certificate state, source and days until expiry",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) >= 1 {
				opts.domain = args[0]
			}

			if err := showStatus(opts); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)

	return cmd
}

func validateEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "validate [domain]",
		Short: "Validate the current certificate against a domain (exit 1 = blocking, 2 = expiring soon)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.domain = args[0]

			if err := validate(opts); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)

	return cmd
}

func inspectEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Dump structured facts about the current certificate as JSON",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := inspect(opts, os.Stdout); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)

	return cmd
}

func selfSignedEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "self-signed [domain]",
		Short: "Generate a self-signed certificate, skipping ACME entirely",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.domain = args[0]

			if err := generateSelfSigned(opts); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)

	return cmd
}

func renewEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "renew [domain]",
		Short: "Renew the current certificate with the strategy that produced it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			opts.domain = args[0]

			if err := renew(osutil.CancelOnInterruptOrTerminate(nil), opts); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.agreeTOS, "agree-tos", "", false, "Agree to the CA's terms of service non-interactively")

	return cmd
}

func importEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "import [certFile] [keyFile]",
		Short: "Validate and install a user-provided certificate/key pair",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			if err := importPair(opts, args[0], args[1]); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.domain, "domain", "d", "", "Require the pair to cover this domain")

	return cmd
}

func consolidateEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Promote the first cleanly-validating pair from the configured legacy locations",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := consolidate(opts); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.domain, "domain", "d", "", "Require candidates to cover this domain")

	return cmd
}

func proxyPullEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "proxy-pull [container]",
		Short: "Copy the certificate pair out of a running reverse-proxy container and install it",
		Args:  cobra.MaximumNArgs(1), // default container comes from config
		Run: func(cmd *cobra.Command, args []string) {
			if err := proxyPull(osutil.CancelOnInterruptOrTerminate(nil), opts, firstOrEmpty(args)); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)
	cmd.Flags().StringVarP(&opts.domain, "domain", "d", "", "Require the pulled pair to cover this domain")

	return cmd
}

func proxyPushEntry() *cobra.Command {
	opts := cliOptions{}

	cmd := &cobra.Command{
		Use:   "proxy-push [container]",
		Short: "Copy the live certificate pair into a running reverse-proxy container",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			if err := proxyPush(osutil.CancelOnInterruptOrTerminate(nil), opts, firstOrEmpty(args)); err != nil {
				panic(err)
			}
		},
	}

	commonFlags(cmd, &opts)

	return cmd
}

func firstOrEmpty(args []string) string {
	if len(args) >= 1 {
		return args[0]
	}

	return ""
}
