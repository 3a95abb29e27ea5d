package unifi

import "github.com/nerrad567/gray-logic-unifi/internal/jsontree"

// projectSysinfo files each site's sysinfo list under <site>.sysinfo.
//
//	d2  sysinfo record            channel "Site Sysinfo"
//	d3  object, array or null     channel
//	d4  object with a "key" field re-walked under <path>.<key>
//	    anything else             state
func projectSysinfo(p *projector, sites []string, sysinfo []jsontree.Node) {
	for i, doc := range sysinfo {
		if i >= len(sites) {
			break
		}

		jsontree.Traverse(doc, sites[i]+".sysinfo", 2, 4, func(v jsontree.Visit) bool {
			if !isObjectLike(v.Value) {
				p.state(v.Path, v.Value)
				return true
			}

			switch v.Depth {
			case 2:
				p.describedChannel(v.Path, "Site Sysinfo")
			case 3:
				p.channel(v.Path)
			default:
				if _, ok := byKey(v.Value); ok {
					projectKeyed(p, rebase(v.Path, v.Value, byKey), v.Value)
				} else {
					p.state(v.Path, v.Value)
				}
			}
			return true
		})
	}
}

// projectKeyed files a keyed sysinfo record: objects become channels named
// by their "name" field, everything else becomes a state.
func projectKeyed(p *projector, path string, record jsontree.Node) {
	jsontree.Traverse(record, path, 1, 2, func(v jsontree.Visit) bool {
		if jsontree.KindOf(v.Value) != jsontree.KindObject {
			p.state(v.Path, v.Value)
			return true
		}
		if name, ok := jsontree.StringField(v.Value, "name"); ok {
			p.describedChannel(v.Path, name)
		} else {
			p.channel(v.Path)
		}
		return true
	})
}
