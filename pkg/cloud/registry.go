package cloud

import (
	"fmt"

	azcloud "github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
	"github.com/azure/azure-account/pkg/config"
)

// Configuration paths for the selected cloud and the optional custom cloud
// definition.
const (
	ConfigPath            = "azure.cloud"
	CustomCloudConfigPath = "azure.customCloud"
)

// CustomCloudConfig is the user-provided definition of a custom (sovereign
// or air-gapped) cloud instance.
type CustomCloudConfig struct {
	ResourceManagerEndpoint  string `json:"resourceManagerEndpoint"`
	ActiveDirectoryAuthority string `json:"activeDirectoryAuthority"`
	Audience                 string `json:"audience,omitempty"`
	PortalURLBase            string `json:"portalUrlBase,omitempty"`
}

// Registry resolves environments from the static well-known set plus an
// optional custom cloud defined in configuration.
type Registry struct {
	cfg config.Config
}

func NewRegistry(cfg config.Config) *Registry {
	return &Registry{cfg: cfg}
}

// List returns the available environments. When includeCustom is set and a
// custom cloud is configured, it is appended after the well-known set.
func (r *Registry) List(includeCustom bool) []Environment {
	environments := []Environment{AzurePublic(), AzureChina(), AzureUSGovernment()}

	if includeCustom {
		if custom, ok := r.customCloud(); ok {
			environments = append(environments, custom)
		}
	}

	return environments
}

// ResolveSelected returns the environment named by the azure.cloud setting,
// defaulting to the public cloud when unset.
func (r *Registry) ResolveSelected() (Environment, error) {
	name, _ := r.cfg.GetString(ConfigPath)
	if name == AzureCustomCloudName {
		custom, ok := r.customCloud()
		if !ok {
			return Environment{}, fmt.Errorf("cloud '%s' is selected but no custom cloud is configured", name)
		}

		return custom, nil
	}

	return ParseName(name)
}

func (r *Registry) customCloud() (Environment, bool) {
	var customConfig CustomCloudConfig
	has, err := r.cfg.GetSection(CustomCloudConfigPath, &customConfig)
	if err != nil || !has || customConfig.ResourceManagerEndpoint == "" {
		return Environment{}, false
	}

	authority := customConfig.ActiveDirectoryAuthority
	if authority == "" {
		authority = azcloud.AzurePublic.ActiveDirectoryAuthorityHost
	}

	audience := customConfig.Audience
	if audience == "" {
		audience = customConfig.ResourceManagerEndpoint
	}

	return Environment{
		Name: AzureCustomCloudName,
		Configuration: azcloud.Configuration{
			ActiveDirectoryAuthorityHost: authority,
			Services: map[azcloud.ServiceName]azcloud.ServiceConfiguration{
				azcloud.ResourceManager: {
					Endpoint: customConfig.ResourceManagerEndpoint,
					Audience: audience,
				},
			},
		},
		PortalURLBase: customConfig.PortalURLBase,
	}, true
}
