package bias

// Group is one value of a protected attribute with its row counts.
type Group struct {
	Label     string
	Size      int
	Positives int
}

// Rate is the share of the group's rows with the positive label.
func (g Group) Rate() float64 {
	if g.Size == 0 {
		return 0
	}
	return float64(g.Positives) / float64(g.Size)
}

// PrivilegePolicy decides which groups of a protected attribute are
// compared as privileged and unprivileged.
type PrivilegePolicy interface {
	Name() string
	// Select receives groups ordered from largest to smallest, equal sizes
	// in first-seen order.
	Select(groups []Group) (privileged, unprivileged Group)
}

// SizePolicy treats the largest group as privileged and the smallest as
// unprivileged. It ignores outcomes entirely.
type SizePolicy struct{}

func (SizePolicy) Name() string { return "size" }

func (SizePolicy) Select(groups []Group) (Group, Group) {
	// the first of the smallest groups, never the privileged group itself
	unprivileged := groups[len(groups)-1]
	for _, g := range groups[1:] {
		if g.Size == unprivileged.Size {
			unprivileged = g
			break
		}
	}
	return groups[0], unprivileged
}
