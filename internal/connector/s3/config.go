package s3

import "github.com/cirrushq/cirrus/pkg/datasource"

// Name is the registry name of this connector.
const Name = "aws_s3"

const (
	// DefaultMaxKeys is the page size when the host does not request one.
	DefaultMaxKeys = 100

	// MaxAllowedKeys caps the page size at the S3 API maximum.
	MaxAllowedKeys = 1000

	// DefaultRegion applies when neither credentials nor environment name a
	// region and no custom endpoint is set.
	DefaultRegion = "us-east-1"
)

// Config is the decoded credentials mapping for one S3 account. Endpoint
// supports S3-compatible stores; ForcePathStyle is required by most of
// them.
type Config struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.AccessKeyID == "" || c.SecretAccessKey == "" {
		return datasource.ConfigErrorf(Name, "access_key_id and secret_access_key are required")
	}
	return nil
}

// resolveRegion applies the region fallback: explicit value wins; AWS
// proper defaults to us-east-1; S3-compatible stores (custom endpoint) get
// no default because most ignore the region entirely.
func resolveRegion(region, endpoint string) string {
	if region != "" {
		return region
	}
	if endpoint == "" {
		return DefaultRegion
	}
	return ""
}
