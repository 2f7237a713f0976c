package cmd

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/cirrushq/cirrus/internal/tool/googlecalendar"
	"github.com/cirrushq/cirrus/internal/tool/spotify"
	"github.com/cirrushq/cirrus/internal/tool/zoom"
	"github.com/cirrushq/cirrus/pkg/oauthflow"
)

// oauthFlows maps provider names to their flow constructors.
var oauthFlows = map[string]func(clientID, clientSecret string) *oauthflow.Flow{
	spotify.Name:        spotify.Flow,
	zoom.Name:           zoom.Flow,
	googlecalendar.Name: googlecalendar.Flow,
}

var oauthCmd = &cobra.Command{
	Use:   "oauth",
	Short: "Run OAuth2 flows for tool providers",
	Long: `Obtain and refresh OAuth2 grants for providers that use three-legged
authorization.

Typical sequence:
  1. cirrus oauth authorize-url spotify --client-id ... --redirect-uri ...
  2. Visit the URL, authorize, copy the ?code= value from the redirect.
  3. cirrus oauth exchange spotify --client-id ... --client-secret ... \
       --redirect-uri ... --code ...
  4. Later: cirrus oauth refresh spotify --client-id ... --client-secret ... \
       --refresh-token ...`,
}

var (
	oauthClientID     string
	oauthClientSecret string
	oauthRedirectURI  string
	oauthCode         string
	oauthRefreshToken string
)

var oauthURLCmd = &cobra.Command{
	Use:   "authorize-url <provider>",
	Short: "Print the vendor authorization URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runOAuthURL,
}

var oauthExchangeCmd = &cobra.Command{
	Use:   "exchange <provider>",
	Short: "Exchange an authorization code for a grant",
	Args:  cobra.ExactArgs(1),
	RunE:  runOAuthExchange,
}

var oauthRefreshCmd = &cobra.Command{
	Use:   "refresh <provider>",
	Short: "Refresh an access token",
	Args:  cobra.ExactArgs(1),
	RunE:  runOAuthRefresh,
}

func init() {
	rootCmd.AddCommand(oauthCmd)
	oauthCmd.AddCommand(oauthURLCmd)
	oauthCmd.AddCommand(oauthExchangeCmd)
	oauthCmd.AddCommand(oauthRefreshCmd)

	oauthCmd.PersistentFlags().StringVar(&oauthClientID, "client-id", "", "OAuth client ID")
	oauthCmd.PersistentFlags().StringVar(&oauthClientSecret, "client-secret", "", "OAuth client secret")
	oauthCmd.PersistentFlags().StringVar(&oauthRedirectURI, "redirect-uri", "", "Registered redirect URI")
	oauthExchangeCmd.Flags().StringVar(&oauthCode, "code", "", "Authorization code from the redirect")
	oauthRefreshCmd.Flags().StringVar(&oauthRefreshToken, "refresh-token", "", "Stored refresh token")
}

func oauthFlow(provider string) (*oauthflow.Flow, error) {
	build, ok := oauthFlows[provider]
	if !ok {
		names := make([]string, 0, len(oauthFlows))
		for name := range oauthFlows {
			names = append(names, name)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("no OAuth flow for provider %q (available: %v)", provider, names)
	}
	if oauthClientID == "" {
		return nil, fmt.Errorf("--client-id is required")
	}
	return build(oauthClientID, oauthClientSecret), nil
}

func runOAuthURL(cmd *cobra.Command, args []string) error {
	flow, err := oauthFlow(args[0])
	if err != nil {
		return err
	}
	if oauthRedirectURI == "" {
		return fmt.Errorf("--redirect-uri is required")
	}
	authURL, state := flow.AuthorizationURL(oauthRedirectURI)
	fmt.Fprintln(cmd.OutOrStdout(), authURL)
	fmt.Fprintf(cmd.ErrOrStderr(), "state: %s\n", state)
	return nil
}

func runOAuthExchange(cmd *cobra.Command, args []string) error {
	flow, err := oauthFlow(args[0])
	if err != nil {
		return err
	}
	switch {
	case oauthClientSecret == "":
		return fmt.Errorf("--client-secret is required")
	case oauthRedirectURI == "":
		return fmt.Errorf("--redirect-uri is required")
	case oauthCode == "":
		return fmt.Errorf("--code is required")
	}
	grant, err := flow.Exchange(cmd.Context(), oauthCode, oauthRedirectURI)
	if err != nil {
		return err
	}
	return printGrant(cmd, grant)
}

func runOAuthRefresh(cmd *cobra.Command, args []string) error {
	flow, err := oauthFlow(args[0])
	if err != nil {
		return err
	}
	switch {
	case oauthClientSecret == "":
		return fmt.Errorf("--client-secret is required")
	case oauthRefreshToken == "":
		return fmt.Errorf("--refresh-token is required")
	}
	grant, err := flow.Refresh(cmd.Context(), oauthRefreshToken)
	if err != nil {
		return err
	}
	return printGrant(cmd, grant)
}

func printGrant(cmd *cobra.Command, grant *oauthflow.Grant) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"access_token":  grant.AccessToken,
		"refresh_token": grant.RefreshToken,
		"expires_at":    grant.ExpiresAt,
		"account_name":  grant.Account.Name,
	})
}
