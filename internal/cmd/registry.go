package cmd

import (
	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/connector"
	"github.com/cirrushq/cirrus/internal/connector/azureblob"
	"github.com/cirrushq/cirrus/internal/connector/confluence"
	"github.com/cirrushq/cirrus/internal/connector/cos"
	"github.com/cirrushq/cirrus/internal/connector/dropbox"
	"github.com/cirrushq/cirrus/internal/connector/github"
	"github.com/cirrushq/cirrus/internal/connector/gitlab"
	"github.com/cirrushq/cirrus/internal/connector/googledrive"
	"github.com/cirrushq/cirrus/internal/connector/onedrive"
	"github.com/cirrushq/cirrus/internal/connector/s3"
	"github.com/cirrushq/cirrus/internal/llm/azureopenai"
	"github.com/cirrushq/cirrus/internal/llm/gemini"
	"github.com/cirrushq/cirrus/internal/llm/lemonade"
	"github.com/cirrushq/cirrus/internal/llm/oci"
	"github.com/cirrushq/cirrus/internal/llm/openaicompat"
	"github.com/cirrushq/cirrus/internal/llm/openrouter"
	"github.com/cirrushq/cirrus/internal/tool/frontapp"
	"github.com/cirrushq/cirrus/internal/tool/googlecalendar"
	"github.com/cirrushq/cirrus/internal/tool/spotify"
	"github.com/cirrushq/cirrus/internal/tool/zoom"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/llm"
	"github.com/cirrushq/cirrus/pkg/tool"
)

// DefaultRegistry returns a registry with every built-in connector.
// Registration lives here, not in the connector packages, so the
// registry package stays free of vendor imports.
func DefaultRegistry() *connector.Registry {
	r := connector.NewRegistry()

	r.RegisterDrive(azureblob.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDrive, error) {
		return azureblob.New(c, l)
	})
	r.RegisterDrive(s3.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDrive, error) {
		return s3.New(c, l)
	})
	r.RegisterDrive(cos.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDrive, error) {
		return cos.New(c, l)
	})
	r.RegisterDrive(dropbox.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDrive, error) {
		return dropbox.New(c, l)
	})
	r.RegisterDrive(googledrive.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDrive, error) {
		return googledrive.New(c, l)
	})
	r.RegisterDrive(onedrive.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDrive, error) {
		return onedrive.New(c, l)
	})

	r.RegisterDocument(confluence.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDocument, error) {
		return confluence.New(c, l)
	})
	r.RegisterDocument(github.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDocument, error) {
		return github.New(c, l)
	})
	r.RegisterDocument(gitlab.Name, func(c datasource.Credentials, l *zap.Logger) (datasource.OnlineDocument, error) {
		return gitlab.New(c, l)
	})

	r.RegisterProvider(spotify.Name, func(c datasource.Credentials, l *zap.Logger) (tool.Provider, error) {
		return spotify.New(c, l)
	})
	r.RegisterProvider(zoom.Name, func(c datasource.Credentials, l *zap.Logger) (tool.Provider, error) {
		return zoom.New(c, l)
	})
	r.RegisterProvider(frontapp.Name, func(c datasource.Credentials, l *zap.Logger) (tool.Provider, error) {
		return frontapp.New(c, l)
	})
	r.RegisterProvider(googlecalendar.Name, func(c datasource.Credentials, l *zap.Logger) (tool.Provider, error) {
		return googlecalendar.New(c, l)
	})

	r.RegisterAdapter(openaicompat.Name, func(c datasource.Credentials, l *zap.Logger) (llm.Adapter, error) {
		return openaicompat.New(c, l)
	})
	r.RegisterAdapter(azureopenai.Name, func(c datasource.Credentials, l *zap.Logger) (llm.Adapter, error) {
		return azureopenai.New(c, l)
	})
	r.RegisterAdapter(openrouter.Name, func(c datasource.Credentials, l *zap.Logger) (llm.Adapter, error) {
		return openrouter.New(c, l)
	})
	r.RegisterAdapter(lemonade.Name, func(c datasource.Credentials, l *zap.Logger) (llm.Adapter, error) {
		return lemonade.New(c, l)
	})
	r.RegisterAdapter(gemini.Name, func(c datasource.Credentials, l *zap.Logger) (llm.Adapter, error) {
		return gemini.New(c, l)
	})
	r.RegisterAdapter(oci.Name, func(c datasource.Credentials, l *zap.Logger) (llm.Adapter, error) {
		return oci.New(c, l)
	})

	return r
}

// registry is the process-wide connector registry used by all commands.
var registry = DefaultRegistry()
