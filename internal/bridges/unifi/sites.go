package unifi

import "github.com/nerrad567/gray-logic-unifi/internal/jsontree"

// projectSites files each site document under its name.
//
//	d1  the site itself        channel "Site <desc>"
//	d2  object, array or null  re-walked: each element becomes a channel and
//	                           its fields are filed under <path>.<subsystem>
//	d2  scalar                 state
func projectSites(p *projector, sites []jsontree.Node) {
	for _, site := range sites {
		name, ok := jsontree.StringField(site, "name")
		if !ok || name == "" {
			continue
		}

		jsontree.Traverse(site, name, 0, 2, func(v jsontree.Visit) bool {
			switch {
			case v.Depth == 1:
				p.describedChannel(v.Path, "Site "+describe(v.Value, "desc"))
			case isObjectLike(v.Value):
				projectSubsystems(p, v.Path, v.Value)
			default:
				p.state(v.Path, v.Value)
			}
			return true
		})
	}
}

// projectSubsystems handles one depth-2 member of a site, typically the
// "health" list.
func projectSubsystems(p *projector, path string, member jsontree.Node) {
	jsontree.Traverse(member, path, 2, 2, func(entry jsontree.Visit) bool {
		p.channel(entry.Path)

		jsontree.Traverse(entry.Value, rebase(entry.Path, entry.Value, bySubsystem), 0, 0, func(v jsontree.Visit) bool {
			if jsontree.IsContainer(v.Value) {
				p.describedChannel(v.Path, "Subsystem "+describe(v.Value, "subsystem"))
			} else {
				p.state(v.Path, v.Value)
			}
			return true
		})
		return true
	})
}
