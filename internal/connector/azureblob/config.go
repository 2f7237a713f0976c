package azureblob

import (
	"fmt"
	"strings"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// Name is the registry name of this connector.
const Name = "azure_blob"

// AuthMethod selects how the storage account is authenticated.
type AuthMethod string

const (
	AuthAccountKey       AuthMethod = "account_key"
	AuthSASToken         AuthMethod = "sas_token"
	AuthConnectionString AuthMethod = "connection_string"
	AuthOAuth            AuthMethod = "oauth"
)

// Config is the decoded credentials mapping for one storage account.
type Config struct {
	AuthMethod       AuthMethod `mapstructure:"auth_method"`
	AccountName      string     `mapstructure:"account_name"`
	AccountKey       string     `mapstructure:"account_key"`
	SASToken         string     `mapstructure:"sas_token"`
	ConnectionString string     `mapstructure:"connection_string"`

	// AccessToken and ExpiresAt carry a host-managed OAuth bearer token
	// with its absolute expiry (unix seconds).
	AccessToken string `mapstructure:"access_token"`
	ExpiresAt   int64  `mapstructure:"expires_at"`
}

// Validate checks the fields required by the selected auth method.
func (c *Config) Validate() error {
	switch c.AuthMethod {
	case AuthAccountKey:
		if c.AccountName == "" || c.AccountKey == "" {
			return datasource.ConfigErrorf(Name, "account_key auth requires account_name and account_key")
		}
	case AuthSASToken:
		if c.AccountName == "" || c.SASToken == "" {
			return datasource.ConfigErrorf(Name, "sas_token auth requires account_name and sas_token")
		}
	case AuthConnectionString:
		if c.ConnectionString == "" {
			return datasource.ConfigErrorf(Name, "connection_string auth requires connection_string")
		}
	case AuthOAuth:
		if c.AccountName == "" || c.AccessToken == "" {
			return datasource.ConfigErrorf(Name, "oauth auth requires account_name and access_token")
		}
	case "":
		return datasource.ConfigErrorf(Name, "auth_method is required")
	default:
		return datasource.ConfigErrorf(Name, "unknown auth_method %q", c.AuthMethod)
	}
	return nil
}

func (c *Config) serviceURL() string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", c.AccountName)
}

// normalizeSAS ensures the SAS token carries its leading '?' so it can be
// appended to the service URL verbatim.
func normalizeSAS(token string) string {
	if token == "" || strings.HasPrefix(token, "?") {
		return token
	}
	return "?" + token
}
