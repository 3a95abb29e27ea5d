package unifi

import "github.com/nerrad567/gray-logic-unifi/internal/jsontree"

// projectDevices files each access device under <site>.devices.<mac>.
//
//	device            channel "<model> - <serial>"
//	  member table    channel named by its path (radio_table, port_table, ...)
//	    table row     channel under <table>.<name>, fields below as states
//	    scalar        state
//	  scalar          state
func projectDevices(p *projector, sites []string, devices []jsontree.Node) {
	for i, site := range sites {
		if i >= len(devices) {
			break
		}

		jsontree.Traverse(devices[i], site+".devices", 2, 2, func(v jsontree.Visit) bool {
			if !jsontree.IsContainer(v.Value) {
				p.state(v.Path, v.Value)
				return true
			}
			projectDevice(p, rebase(v.Path, v.Value, byMAC), v.Value)
			return true
		})
	}
}

func projectDevice(p *projector, path string, device jsontree.Node) {
	jsontree.Traverse(device, path, 1, 2, func(v jsontree.Visit) bool {
		switch {
		case v.Depth == 1:
			p.describedChannel(v.Path, describe(v.Value, "model")+" - "+describe(v.Value, "serial"))
		case jsontree.IsContainer(v.Value):
			projectDeviceTable(p, v.Path, v.Value)
		default:
			p.state(v.Path, v.Value)
		}
		return true
	})
}

func projectDeviceTable(p *projector, path string, table jsontree.Node) {
	jsontree.Traverse(table, path, 1, 2, func(v jsontree.Visit) bool {
		switch {
		case v.Depth == 1:
			p.channel(v.Path)
		case jsontree.IsContainer(v.Value):
			jsontree.Traverse(v.Value, rebase(v.Path, v.Value, byName), 1, 0, func(r jsontree.Visit) bool {
				if r.Depth == 1 {
					p.channel(r.Path)
				} else {
					p.state(r.Path, r.Value)
				}
				return true
			})
		default:
			p.state(v.Path, v.Value)
		}
		return true
	})
}
