package connector

import (
	"github.com/go-viper/mapstructure/v2"

	"github.com/cirrushq/cirrus/pkg/datasource"
)

// DecodeCredentials decodes the flat host credentials mapping into a
// connector's typed config struct. Weak typing is on because hosts deliver
// every value as a string, including numeric fields like token expiries.
func DecodeCredentials(name string, creds datasource.Credentials, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return datasource.ConfigErrorf(name, "build credentials decoder: %v", err)
	}
	if err := dec.Decode(map[string]string(creds)); err != nil {
		return datasource.ConfigErrorf(name, "decode credentials: %v", err)
	}
	return nil
}
