package mindmap

// FindByTitle returns the first node, in pre-order over the document,
// whose normalized title matches title.
func (d *Document) FindByTitle(title string) *NodeDoc {
	want := NormalizeTitle(title)
	if want == "" {
		return nil
	}
	var found *NodeDoc
	for i := range d.Nodes {
		Walk(&d.Nodes[i], 0, func(n *NodeDoc, _ int) bool {
			if found != nil {
				return false
			}
			if NormalizeTitle(n.Title) == want {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	return found
}

// FindByID returns the node with the given id, searching at any depth.
func (d *Document) FindByID(id string) *NodeDoc {
	var found *NodeDoc
	for i := range d.Nodes {
		Walk(&d.Nodes[i], 0, func(n *NodeDoc, _ int) bool {
			if found != nil {
				return false
			}
			if n.ID == id {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	return found
}

// MergeChildren appends the nodes of incoming that the target does not
// already have, matching by id or normalized title. The target is found by
// id first and then by title, at any depth. The synthesized root of a
// document with several top-level nodes is the document itself, so its
// children are merged into d.Nodes. It returns the number of nodes
// appended and false when no target matches.
func (d *Document) MergeChildren(targetID, targetTitle string, incoming []NodeDoc) (int, bool) {
	if targetID != "" {
		if target := d.FindByID(targetID); target != nil {
			return mergeInto(&target.Children, incoming), true
		}
		if targetID == RootID && len(d.Nodes) > 1 {
			return mergeInto(&d.Nodes, incoming), true
		}
	}
	target := d.FindByTitle(targetTitle)
	if target == nil {
		return 0, false
	}
	return mergeInto(&target.Children, incoming), true
}

func mergeInto(children *[]NodeDoc, incoming []NodeDoc) int {
	fresh := FilterNew(*children, incoming)
	for _, n := range fresh {
		*children = append(*children, n.Clone())
	}
	return len(fresh)
}
