package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"xtplay/internal/catalog"
	"xtplay/internal/httputil"
	"xtplay/internal/media"
	"xtplay/internal/session"
	"xtplay/internal/store"
	"xtplay/internal/ui"
	"xtplay/internal/xtream"
)

var flagPlaylistName string

var loginCmd = &cobra.Command{
	Use:   "login [portal-url] [username]",
	Short: "Log in to an Xtream Codes portal and make it the active account",
	Args:  cobra.MaximumNArgs(2),
	RunE:  loginRun,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out; saved accounts are kept",
	Args:  cobra.NoArgs,
	RunE:  logoutRun,
}

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "List saved accounts",
	Args:  cobra.NoArgs,
	RunE:  accountsRun,
}

var accountsUseCmd = &cobra.Command{
	Use:   "use",
	Short: "Switch to another saved account",
	Args:  cobra.NoArgs,
	RunE:  accountsUseRun,
}

var accountsRmCmd = &cobra.Command{
	Use:   "rm",
	Short: "Forget a saved account and its favorites and history",
	Args:  cobra.NoArgs,
	RunE:  accountsRmRun,
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show subscription details of the active account",
	Args:  cobra.NoArgs,
	RunE:  accountRun,
}

func init() {
	loginCmd.Flags().StringVar(&flagPlaylistName, "name", "", "Display name for this account")
	accountsCmd.AddCommand(accountsUseCmd, accountsRmCmd)
}

func loginRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	prompts := []string{"Portal URL", "Username"}
	values := make([]string, 2)
	copy(values, args)
	for i := range values {
		if values[i] != "" {
			continue
		}
		v, err := ui.Input(prompts[i])
		if err != nil {
			return err
		}
		values[i] = v
	}
	password, err := ui.Secret("Password")
	if err != nil {
		return err
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := session.New(values[0], values[1], password)
	if err != nil {
		return err
	}
	svc := catalog.New(sess, a.resolver, catalog.Options{
		LenientAuth: cfg.Catalog.LenientAuth,
		AuthTimeout: cfg.Transport.AuthTimeout.Duration,
	})
	ok, err := svc.Authenticate(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errAuthRejected
	}

	creds := sess.Credentials()
	acct, err := a.store.SaveAccount(ctx, media.Account{
		PlaylistName: flagPlaylistName,
		Username:     creds.Username,
		Password:     creds.Password,
		PortalURL:    creds.BaseURL,
	})
	if err != nil {
		return err
	}
	if err := a.store.SetActive(ctx, store.UserOf(acct)); err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, ui.Title("Logged in as "+acct.Label()))
	if info := sess.UserInfo(); info != nil {
		if exp := formatExpiry(info.ExpDate.String()); exp != "" {
			fmt.Fprintln(os.Stderr, ui.Hint("Subscription expires "+exp))
		}
	}
	return nil
}

func logoutRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.ClearActive(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Logged out.")
	return nil
}

func accountsRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.store.Accounts(cmd.Context())
	if err != nil {
		return err
	}
	if flagJSON {
		type row struct {
			Name     string `json:"name"`
			Username string `json:"username"`
			Portal   string `json:"portal"`
			Active   bool   `json:"active"`
			LastUsed int64  `json:"last_used"`
		}
		rows := make([]row, 0, len(accounts))
		for _, acct := range accounts {
			rows = append(rows, row{acct.Label(), acct.Username, acct.PortalURL, isActive(a, acct), acct.LastUsed})
		}
		return writeJSON(rows)
	}

	if len(accounts) == 0 {
		fmt.Println("No saved accounts. Run `xtplay login` to add one.")
		return nil
	}
	for _, acct := range accounts {
		marker := " "
		if isActive(a, acct) {
			marker = "*"
		}
		fmt.Printf("%s %s\t%s\t%s\n", marker, acct.Label(), acct.Username, acct.PortalURL)
	}
	return nil
}

func isActive(a *app, acct media.Account) bool {
	return acct.Username == a.account.Username && acct.PortalURL == a.account.PortalURL
}

func selectAccount(ctx context.Context, a *app, prompt string) (media.Account, error) {
	accounts, err := a.store.Accounts(ctx)
	if err != nil {
		return media.Account{}, err
	}
	if len(accounts) == 0 {
		return media.Account{}, fmt.Errorf("no saved accounts")
	}
	items := make([]string, len(accounts))
	for i, acct := range accounts {
		items[i] = fmt.Sprintf("%s (%s @ %s)", acct.Label(), acct.Username, httputil.Host(acct.PortalURL))
	}
	idx, err := ui.Select(prompt, items)
	if err != nil {
		return media.Account{}, err
	}
	return accounts[idx], nil
}

func accountsUseRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := selectAccount(cmd.Context(), a, "Switch to")
	if err != nil {
		return err
	}
	if err := a.store.SetActive(cmd.Context(), store.UserOf(acct)); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, ui.Title("Active account: "+acct.Label()))
	return nil
}

func accountsRmRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	acct, err := selectAccount(cmd.Context(), a, "Remove")
	if err != nil {
		return err
	}
	ok, err := ui.Confirm(fmt.Sprintf("Forget %s and its favorites and history?", acct.Label()))
	if err != nil || !ok {
		return err
	}
	if err := a.store.RemoveAccount(cmd.Context(), store.UserOf(acct)); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "Removed", acct.Label())
	return nil
}

func accountRun(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	info := a.catalog.AccountInfo(cmd.Context())
	if info == nil || info.UserInfo == nil {
		return fmt.Errorf("account details unavailable")
	}
	if flagJSON {
		return writeJSON(info)
	}
	printAccount(info)
	return nil
}

func printAccount(info *xtream.AuthResponse) {
	u := info.UserInfo
	fmt.Println(ui.Title(u.Username))
	fmt.Printf("Status:      %s\n", u.Status)
	if exp := formatExpiry(u.ExpDate.String()); exp != "" {
		fmt.Printf("Expires:     %s\n", exp)
	}
	fmt.Printf("Connections: %s/%s\n", u.ActiveCons, u.MaxConnections)
	if u.IsTrial.String() == "1" {
		fmt.Println("Trial:       yes")
	}
	if s := info.ServerInfo; s != nil {
		fmt.Printf("Server:      %s:%s (%s)\n", s.URL, s.Port, s.Timezone)
	}
}

// formatExpiry renders a unix timestamp as a date; "" or "null" mean never.
func formatExpiry(ts string) string {
	n, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || n <= 0 {
		return ""
	}
	return time.Unix(n, 0).Format("2006-01-02")
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
