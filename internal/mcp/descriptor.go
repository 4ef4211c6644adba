package mcp

import (
	"fmt"

	"github.com/aixtiv/sallyport/internal/storage"
)

// Server sizing presets.
const (
	ServerTypeStandard = "standard"
	ServerTypePremium  = "premium"
)

// Resources is the compute allocation for one MCP server instance.
type Resources struct {
	Memory string `json:"memory"`
	CPU    string `json:"cpu"`
}

// Scaling bounds the instance count for one MCP server.
type Scaling struct {
	MinInstances int `json:"minInstances"`
	MaxInstances int `json:"maxInstances"`
}

// Descriptor is the deployment request handed to the deployment collaborator.
type Descriptor struct {
	Name        string            `json:"name"`
	Tenant      string            `json:"tenant"`
	User        string            `json:"user"`
	Type        string            `json:"type"`
	Environment map[string]string `json:"environment"`
	Resources   Resources         `json:"resources"`
	Scaling     Scaling           `json:"scaling"`
}

// NewDescriptor builds the deployment descriptor for a tenant/user pair. An
// unknown server type gets the standard sizing.
func NewDescriptor(t *storage.Tenant, user *storage.User, oauthClientID, name, serverType, platformDomain string, customEnv map[string]string) *Descriptor {
	env := map[string]string{
		"TENANT_ID":          t.ID,
		"USER_UUID":          user.UUID,
		"SALLYPORT_ENDPOINT": fmt.Sprintf("https://%s.%s", t.ID, platformDomain),
		"MCP_CLIENT_ID":      oauthClientID,
	}
	for k, v := range customEnv {
		env[k] = v
	}

	resources, scaling := sizingFor(serverType)
	return &Descriptor{
		Name:        name,
		Tenant:      t.ID,
		User:        user.UUID,
		Type:        serverType,
		Environment: env,
		Resources:   resources,
		Scaling:     scaling,
	}
}

func sizingFor(serverType string) (Resources, Scaling) {
	if serverType == ServerTypePremium {
		return Resources{Memory: "2Gi", CPU: "1000m"}, Scaling{MinInstances: 1, MaxInstances: 10}
	}
	return Resources{Memory: "1Gi", CPU: "500m"}, Scaling{MinInstances: 0, MaxInstances: 5}
}
