package unifi

import "github.com/nerrad567/gray-logic-unifi/internal/jsontree"

// projectClients files each connected client under <site>.clients.<mac>.
// The client itself becomes a channel described by its hostname; every
// node below it becomes a state.
func projectClients(p *projector, sites []string, clients []jsontree.Node) {
	for i, site := range sites {
		if i >= len(clients) {
			break
		}

		jsontree.Traverse(clients[i], site+".clients", 2, 2, func(v jsontree.Visit) bool {
			if !jsontree.IsContainer(v.Value) {
				p.state(v.Path, v.Value)
				return true
			}

			jsontree.Traverse(v.Value, rebase(v.Path, v.Value, byMAC), 1, 0, func(c jsontree.Visit) bool {
				if c.Depth == 1 {
					p.describedChannel(c.Path, describe(c.Value, "hostname"))
				} else {
					p.state(c.Path, c.Value)
				}
				return true
			})
			return true
		})
	}
}
