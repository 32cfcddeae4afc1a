// Package cloud maps cloud instance names to their endpoint configuration.
package cloud

import (
	"fmt"
	"net/url"
	"strings"

	azcloud "github.com/Azure/azure-sdk-for-go/sdk/azcore/cloud"
)

const (
	AzurePublicName       = "AzureCloud"
	AzureChinaCloudName   = "AzureChinaCloud"
	AzureUSGovernmentName = "AzureUSGovernment"
	AzureCustomCloudName  = "AzureCustomCloud"
)

// Environment identifies a cloud instance the user can sign in to. The
// embedded azcore configuration carries the authority and resource manager
// endpoints used by token acquisition and ARM clients.
type Environment struct {
	Name string

	Configuration azcloud.Configuration

	// The base URL for the cloud's portal, e.g. https://portal.azure.com.
	PortalURLBase string
}

// Authority returns the login/authority URL for the environment.
func (e Environment) Authority() string {
	return e.Configuration.ActiveDirectoryAuthorityHost
}

// ResourceManagerEndpoint returns the ARM endpoint for the environment.
func (e Environment) ResourceManagerEndpoint() string {
	return e.Configuration.Services[azcloud.ResourceManager].Endpoint
}

// ResourceManagerAudience returns the token audience for ARM requests.
func (e Environment) ResourceManagerAudience() string {
	return e.Configuration.Services[azcloud.ResourceManager].Audience
}

// IsADFS reports whether the environment's authority is an on-premises ADFS
// endpoint. ADFS authorities carry an "/adfs" path segment and do not
// support the browser redirect flow.
func (e Environment) IsADFS() bool {
	parsed, err := url.Parse(e.Authority())
	if err != nil {
		return false
	}

	return strings.EqualFold(strings.Trim(parsed.Path, "/"), "adfs")
}

func AzurePublic() Environment {
	return Environment{
		Name:          AzurePublicName,
		Configuration: azcloud.AzurePublic,
		PortalURLBase: "https://portal.azure.com",
	}
}

func AzureChina() Environment {
	return Environment{
		Name:          AzureChinaCloudName,
		Configuration: azcloud.AzureChina,
		PortalURLBase: "https://portal.azure.cn",
	}
}

func AzureUSGovernment() Environment {
	return Environment{
		Name:          AzureUSGovernmentName,
		Configuration: azcloud.AzureGovernment,
		PortalURLBase: "https://portal.azure.us",
	}
}

// legacyAliases maps environment names used by earlier releases to their
// current names. Stored credentials may still be keyed by these.
var legacyAliases = map[string]string{
	"Azure":      AzurePublicName,
	"AzureChina": AzureChinaCloudName,
}

// LegacyAliases returns the legacy-to-current environment name mapping, for
// migrating stored credentials keyed by the old names.
func LegacyAliases() map[string]string {
	aliases := make(map[string]string, len(legacyAliases))
	for alias, canonical := range legacyAliases {
		aliases[alias] = canonical
	}

	return aliases
}

// KnownNames returns every environment name credentials may be stored
// under, current names first, legacy aliases after.
func KnownNames() []string {
	names := []string{AzurePublicName, AzureChinaCloudName, AzureUSGovernmentName, AzureCustomCloudName}
	for alias := range legacyAliases {
		names = append(names, alias)
	}

	return names
}

// ParseName resolves an environment name (or legacy alias) to its
// environment. An empty name resolves to the public cloud.
func ParseName(name string) (Environment, error) {
	if canonical, has := legacyAliases[name]; has {
		name = canonical
	}

	switch name {
	case AzurePublicName, "":
		return AzurePublic(), nil
	case AzureChinaCloudName:
		return AzureChina(), nil
	case AzureUSGovernmentName:
		return AzureUSGovernment(), nil
	}

	return Environment{}, fmt.Errorf("cloud name '%s' not found", name)
}
