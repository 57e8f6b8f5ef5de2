package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/fx"

	"github.com/adsightlabs/adconnect/internal/accounts"
	"github.com/adsightlabs/adconnect/internal/backend"
	"github.com/adsightlabs/adconnect/internal/config"
	"github.com/adsightlabs/adconnect/internal/flow"
	"github.com/adsightlabs/adconnect/internal/logger"
	"github.com/adsightlabs/adconnect/internal/provider"
	"github.com/adsightlabs/adconnect/internal/tokens"
	"github.com/adsightlabs/adconnect/internal/tui"
)

func main() {
	Execute()
}

var noPicker bool

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "adconnect",
	Short: "Connect ad platform accounts to your analytics backend",
	Long: `adconnect links Meta Ads and Google Ads accounts to the analytics backend.
It runs the browser authorization flow, stores the resulting tokens, and lists
the ad accounts each connection can reach.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		versionFlag, _ := cmd.Flags().GetBool("version")
		if versionFlag {
			pterm.Info.Println(config.GetVersionInfo())
			os.Exit(0)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func init() {
	config.InitFlags()
	rootCmd.PersistentFlags().AddFlagSet(pflag.CommandLine)
	rootCmd.PersistentFlags().BoolP("version", "v", false, "Show version information")

	connectCmd.Flags().BoolVar(&noPicker, "no-picker", false, "Skip the interactive account picker")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(statusCmd)
}

var connectCmd = &cobra.Command{
	Use:   "connect <provider>",
	Short: "Run the browser authorization flow for a provider",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := provider.Name(args[0])
		return runApp(func(connector *flow.Connector, store *tokens.Store) error {
			return runConnect(cmd.Context(), name, connector, store)
		})
	},
}

var accountsCmd = &cobra.Command{
	Use:   "accounts <provider>",
	Short: "List the ad accounts a stored token can reach",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := provider.Name(args[0])
		return runApp(func(registry *provider.Registry, enumerator *accounts.Enumerator, store *tokens.Store) error {
			return runAccounts(cmd.Context(), name, registry, enumerator, store)
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <provider>",
	Short: "Check whether the stored token for a provider is still valid",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := provider.Name(args[0])
		return runApp(func(registry *provider.Registry, client *backend.Client, store *tokens.Store) error {
			return runStatus(cmd.Context(), name, registry, client, store)
		})
	},
}

// runApp assembles the fx application and executes the command body as an
// fx invocation. An error from the body aborts startup and surfaces here.
func runApp(invoke interface{}) error {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(config.Load),
		fx.Provide(
			func(c *config.Config) *config.BackendConfig { return &c.Backend },
			func(c *config.Config) *config.FlowConfig { return &c.Flow },
			func(c *config.Config) *config.StorageConfig { return &c.Storage },
		),
		fx.Invoke(func(c *config.Config) error { return logger.InitLogger(&c.Logging) }),
		provider.Module,
		backend.Module,
		accounts.Module,
		flow.Module,
		tokens.Module,
		fx.Invoke(invoke),
	)
	defer func() { _ = logger.Sync() }()

	startCtx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStop()
	return app.Stop(stopCtx)
}

func runConnect(ctx context.Context, name provider.Name, connector *flow.Connector, store *tokens.Store) error {
	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Waiting for %s authorization in your browser...", name))

	result, err := connector.Connect(ctx, name)
	if err != nil {
		spinner.Fail("Authorization failed")
		return err
	}
	spinner.Success("Authorization complete")

	if err := store.Save(name, result.Token); err != nil {
		return fmt.Errorf("token obtained but could not be saved: %w", err)
	}

	if result.AccountsErr != nil {
		pterm.Warning.Printfln("Token saved, but listing accounts failed: %v", result.AccountsErr)
		pterm.Warning.Println("Run 'adconnect accounts' later to retry the listing.")
		return nil
	}

	if len(result.Accounts) == 0 {
		pterm.Info.Println("Token saved. No ad accounts are visible to this connection yet.")
		return nil
	}

	selected := result.Accounts
	if !noPicker {
		p := tea.NewProgram(tui.NewAppModel(name, result.Accounts), tea.WithAltScreen())
		m, err := p.Run()
		if err != nil {
			return fmt.Errorf("account picker failed: %w", err)
		}
		finalModel := m.(tui.AppModel)
		selected = finalModel.SelectedAccounts()
	}

	pterm.Info.Printfln("Connected %s with %s accounts (%s linked).",
		name,
		pterm.White(len(result.Accounts)),
		pterm.LightGreen(len(selected)))
	printAccounts(selected)
	return nil
}

func runAccounts(ctx context.Context, name provider.Name, registry *provider.Registry, enumerator *accounts.Enumerator, store *tokens.Store) error {
	def, err := registry.Get(name)
	if err != nil {
		return err
	}

	token, err := store.Load(name)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return fmt.Errorf("no stored token for %s, run 'adconnect connect %s' first", name, name)
		}
		return err
	}

	accts, err := enumerator.List(ctx, def, token)
	if err != nil {
		return err
	}

	if len(accts) == 0 {
		pterm.Info.Printfln("No ad accounts are visible to the %s connection.", name)
		return nil
	}
	printAccounts(accts)
	return nil
}

func runStatus(ctx context.Context, name provider.Name, registry *provider.Registry, client *backend.Client, store *tokens.Store) error {
	def, err := registry.Get(name)
	if err != nil {
		return err
	}

	token, err := store.Load(name)
	if err != nil {
		if errors.Is(err, tokens.ErrTokenNotFound) {
			return fmt.Errorf("no stored token for %s, run 'adconnect connect %s' first", name, name)
		}
		return err
	}

	status, err := client.TestToken(ctx, def, token)
	if err != nil {
		return err
	}

	if status.Valid {
		pterm.Success.Printfln("The stored %s token is valid.", name)
		return nil
	}
	if status.Error != "" {
		pterm.Error.Printfln("The stored %s token is invalid: %s", name, status.Error)
	} else {
		pterm.Error.Printfln("The stored %s token is invalid.", name)
	}
	return nil
}

func printAccounts(accts []accounts.Account) {
	rows := pterm.TableData{{"ID", "Name", "Customer", "Status"}}
	for _, acct := range accts {
		rows = append(rows, []string{acct.ID, acct.Name, acct.CustomerID, string(acct.Status)})
		for _, child := range acct.Children {
			rows = append(rows, []string{"  " + child.ID, child.Name, child.CustomerID, string(child.Status)})
		}
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
