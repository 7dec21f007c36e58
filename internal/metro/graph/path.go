package graph

import (
	"container/heap"
	"fmt"

	"github.com/metropath/pkg/metro/models"
)

// Weights are the constant per-class edge costs, in minutes.
type Weights struct {
	Segment  float64
	Transfer float64
}

// DefaultWeights: three minutes between stations, six to change lines.
var DefaultWeights = Weights{Segment: 3, Transfer: 6}

func (w Weights) Validate() error {
	if !(w.Segment > 0) || !(w.Transfer > 0) {
		return fmt.Errorf("edge weights must be positive, got segment=%v transfer=%v", w.Segment, w.Transfer)
	}
	return nil
}

func (w Weights) cost(isTransfer bool) float64 {
	if isTransfer {
		return w.Transfer
	}
	return w.Segment
}

// FindPath returns the minimum-time route from start to end.
// The boolean is false when either id is unknown or end is unreachable.
//
// Equal-cost frontier entries are popped in insertion order, so for a
// given graph the returned path is always the same one.
func (g Graph) FindPath(start, end string, w Weights) (models.Route, bool) {
	if _, ok := g[start]; !ok {
		return models.Route{}, false
	}
	if _, ok := g[end]; !ok {
		return models.Route{}, false
	}
	if start == end {
		return models.Route{Steps: []models.Step{{StationID: start}}}, true
	}

	best := map[string]float64{start: 0}
	prev := make(map[string]hop)
	settled := make(map[string]bool)

	pq := &priorityQueue{}
	var seq uint64
	heap.Push(pq, &pqItem{node: start, cost: 0, seq: seq})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		cur := item.node
		if settled[cur] || item.cost > best[cur] {
			continue
		}
		if cur == end {
			return models.Route{Steps: reconstructPath(prev, start, end), TotalMinutes: item.cost}, true
		}
		settled[cur] = true

		for _, n := range g[cur] {
			if settled[n.ID] {
				continue
			}
			next := item.cost + w.cost(n.IsTransfer)
			if old, ok := best[n.ID]; ok && next >= old {
				continue
			}
			best[n.ID] = next
			prev[n.ID] = hop{from: cur, transfer: n.IsTransfer}
			seq++
			heap.Push(pq, &pqItem{node: n.ID, cost: next, seq: seq})
		}
	}

	return models.Route{}, false
}

type hop struct {
	from     string
	transfer bool
}

func reconstructPath(prev map[string]hop, start, end string) []models.Step {
	var rev []models.Step
	for cur := end; cur != start; {
		h := prev[cur]
		rev = append(rev, models.Step{StationID: cur, ViaTransfer: h.transfer})
		cur = h.from
	}
	rev = append(rev, models.Step{StationID: start})

	steps := make([]models.Step, len(rev))
	for i, s := range rev {
		steps[len(rev)-1-i] = s
	}
	return steps
}

type pqItem struct {
	node string
	cost float64
	seq  uint64
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].cost != pq[j].cost {
		return pq[i].cost < pq[j].cost
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x interface{}) {
	*pq = append(*pq, x.(*pqItem))
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
