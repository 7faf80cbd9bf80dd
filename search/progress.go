package search

import "time"

// Progress is a snapshot of a running search's statistics, the shape shared
// by every caller that streams search status instead of waiting for the
// final tree: cmd/server's WebSocket feed and cmd/searchtui's dashboard
// both report the same fields so a browser client and a terminal client
// show the same numbers.
type Progress struct {
	SimsRun    int     `json:"sims_run"`
	SimsTarget int     `json:"sims_target"`
	RootValue  float32 `json:"root_value"`
	MaxDepth   int     `json:"max_depth"`
	SimsPerSec float64 `json:"sims_per_sec"`
}

// ProgressFromRoot builds a Progress snapshot from root's current
// statistics, given the overall simulation target and how long the search
// behind root has been running.
func ProgressFromRoot(root *Node, simsTarget int, elapsed time.Duration) Progress {
	p := Progress{
		SimsRun:    root.VisitCount,
		SimsTarget: simsTarget,
		RootValue:  root.Q(),
		MaxDepth:   TreeDepth(root),
	}
	if elapsed > 0 {
		p.SimsPerSec = float64(root.VisitCount) / elapsed.Seconds()
	}
	return p
}

// TreeDepth returns the depth of the deepest expanded path below n: 0 for a
// leaf or unexpanded node.
func TreeDepth(n *Node) int {
	if n == nil || len(n.Children) == 0 {
		return 0
	}
	max := 0
	for _, c := range n.Children {
		if d := TreeDepth(c); d > max {
			max = d
		}
	}
	return 1 + max
}
