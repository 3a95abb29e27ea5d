package unifi

import (
	"context"

	"github.com/nerrad567/gray-logic-unifi/internal/jsontree"
)

// Controller is the device-management controller the bridge polls.
//
// Per-site calls return one document per entry of sites, in the same order.
// A controller session is opened with Login and closed with Logout; the
// bridge calls the methods strictly in sequence.
type Controller interface {
	// Login opens a session.
	Login(ctx context.Context, username, password string) error

	// SiteStats returns one document per site, each carrying a "name" field.
	SiteStats(ctx context.Context) ([]jsontree.Node, error)

	// SiteSysinfo returns the sysinfo list of each site.
	SiteSysinfo(ctx context.Context, sites []string) ([]jsontree.Node, error)

	// ClientDevices returns the connected-client list of each site.
	ClientDevices(ctx context.Context, sites []string) ([]jsontree.Node, error)

	// AccessDevices returns the access-device list of each site.
	AccessDevices(ctx context.Context, sites []string) ([]jsontree.Node, error)

	// Logout closes the session.
	Logout(ctx context.Context) error
}

// Documents is everything fetched from the controller in one cycle.
type Documents struct {
	Sites   []jsontree.Node
	Names   []string
	Sysinfo []jsontree.Node
	Clients []jsontree.Node
	Devices []jsontree.Node
}

// siteNames extracts the name of each site document, skipping documents
// without one.
func siteNames(sites []jsontree.Node) []string {
	names := make([]string, 0, len(sites))
	for _, s := range sites {
		if name, ok := jsontree.StringField(s, "name"); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
