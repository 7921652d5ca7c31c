package cothread

//go:generate genny -in=../gen/singly_linked.go -out=record_list.go cothread "Generic=record"
//go:generate genny -in=../gen/managed_pool.go -out=record_pool.go cothread "Generic=record"

// registry is every task the scheduler can reach, in creation order.  The
// entry task is always first.  Only the task holding the processor (or the
// scheduler between turns) touches it, so there is no lock.
type registry struct {
	list recordSinglyLinkedList
}

func (g *registry) insert(r *record) {
	r.link = g.list.Append(r)
}

func (g *registry) remove(r *record) {
	if r.link == g.list.First() {
		panic("cothread: attempt to unlink the entry task")
	}
	if !g.list.Remove(r.link) {
		panic("cothread: unlinking a task that is not registered")
	}
	r.link = nil
}

func (g *registry) contains(r *record) bool {
	return g.list.Contains(r)
}

func (g *registry) head() *recordNodeSL {
	return g.list.First()
}

func (g *registry) length() int {
	return g.list.Length()
}
