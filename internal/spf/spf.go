// Package spf implements spec.md §4.6: capacity-weighted Dijkstra over the
// LSDB graph, joined against the NeighborTable to resolve each
// destination's next hop and egress interface. The priority queue is a
// container/heap min-heap, the same mechanism the teacher's
// `internal/liveness/scheduler.go` uses for its event queue.
package spf

import (
	"container/heap"
	"net"
	"sort"

	"github.com/LennyGonzales/P-OSPF/internal/lsdb"
	"github.com/LennyGonzales/P-OSPF/internal/neighbor"
)

// Decision is spec.md §3's RoutingDecision.
type Decision struct {
	DestPrefix      *net.IPNet
	NextHopIPv4     string
	EgressInterface string
	Cost            uint32
}

// firstHopCandidate is one (peer_ipv4, interface) pair over which a
// first-hop router is reachable; bestCandidate picks the lowest-cost one,
// breaking ties lexicographically by interface name (spec.md §4.6).
type firstHopCandidate struct {
	peerIPv4  string
	iface     string
	localCost uint32
}

// Compute runs Dijkstra rooted at localRouter over the graph
// (vertices, edges), then emits one RoutingDecision per (reachable
// router, each of that router's stub prefixes), excluding the local
// router's own prefixes.
func Compute(
	localRouter string,
	vertices []string,
	edges []lsdb.Edge,
	stubPrefixesByOrigin map[string][]string,
	twoWayNeighbors []neighbor.TwoWayNeighbor,
) []Decision {
	dist, prev := dijkstra(localRouter, vertices, edges)

	firstHopByRouter := make(map[string]string) // router → first-hop router id
	for v := range dist {
		if v == localRouter {
			continue
		}
		firstHopByRouter[v] = firstHop(localRouter, v, prev)
	}

	candidatesByRouter := make(map[string][]firstHopCandidate)
	for _, n := range twoWayNeighbors {
		candidatesByRouter[n.RouterID] = append(candidatesByRouter[n.RouterID], firstHopCandidate{
			peerIPv4:  n.PeerIPv4,
			iface:     n.OnInterface,
			localCost: n.EffectiveLinkCost,
		})
	}

	var decisions []Decision
	for router, cost := range dist {
		if router == localRouter {
			continue
		}
		hop := firstHopByRouter[router]
		cand, ok := bestCandidate(candidatesByRouter[hop])
		if !ok {
			continue
		}
		for _, prefixStr := range stubPrefixesByOrigin[router] {
			_, prefix, err := net.ParseCIDR(prefixStr)
			if err != nil {
				continue
			}
			decisions = append(decisions, Decision{
				DestPrefix:      prefix,
				NextHopIPv4:     cand.peerIPv4,
				EgressInterface: cand.iface,
				Cost:            cost,
			})
		}
	}

	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].DestPrefix.String() < decisions[j].DestPrefix.String()
	})
	return decisions
}

func bestCandidate(cands []firstHopCandidate) (firstHopCandidate, bool) {
	if len(cands) == 0 {
		return firstHopCandidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.localCost < best.localCost || (c.localCost == best.localCost && c.iface < best.iface) {
			best = c
		}
	}
	return best, true
}

// firstHop walks prev[] back from dst to the root's direct neighbor.
func firstHop(root, dst string, prev map[string]string) string {
	cur := dst
	for {
		p, ok := prev[cur]
		if !ok {
			return ""
		}
		if p == root {
			return cur
		}
		cur = p
	}
}

type heapItem struct {
	vertex string
	dist   uint32
	index  int
}

type priorityQueue []*heapItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*heapItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

const infinite = ^uint32(0)

func dijkstra(root string, vertices []string, edges []lsdb.Edge) (dist map[string]uint32, prev map[string]string) {
	adj := make(map[string][]lsdb.Edge, len(vertices))
	for _, e := range edges {
		adj[e.A] = append(adj[e.A], e)
		adj[e.B] = append(adj[e.B], lsdb.Edge{A: e.B, B: e.A, Cost: e.Cost})
	}

	dist = make(map[string]uint32, len(vertices))
	prev = make(map[string]string, len(vertices))
	visited := make(map[string]bool, len(vertices))
	for _, v := range vertices {
		dist[v] = infinite
	}
	if _, ok := dist[root]; !ok {
		return dist, prev
	}
	dist[root] = 0

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &heapItem{vertex: root, dist: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*heapItem)
		u := item.vertex
		if visited[u] {
			continue
		}
		visited[u] = true

		for _, e := range adj[u] {
			v := e.B
			if dist[u] == infinite {
				continue
			}
			nd := dist[u] + e.Cost
			if nd < dist[v] {
				dist[v] = nd
				prev[v] = u
				heap.Push(pq, &heapItem{vertex: v, dist: nd})
			}
		}
	}

	reachable := make(map[string]uint32, len(dist))
	for v, d := range dist {
		if d != infinite {
			reachable[v] = d
		}
	}
	return reachable, prev
}
