package crowd

import (
	"math"
)

// EstimatedPointsPerCell is used for initial cell index capacity estimation.
const EstimatedPointsPerCell = 4

// CellIndex provides efficient neighbor queries over frame positions using a
// regular grid. Cell size should approximately match the clustering radius.
type CellIndex struct {
	CellSize float64
	Grid     map[int64][]int // Cell ID → position indices
}

// NewCellIndex creates a cell index with the specified cell size.
func NewCellIndex(cellSize float64) *CellIndex {
	return &CellIndex{
		CellSize: cellSize,
		Grid:     make(map[int64][]int),
	}
}

// Build populates the cell index from a set of frame positions.
func (ci *CellIndex) Build(positions []Position) {
	ci.Grid = make(map[int64][]int, len(positions)/EstimatedPointsPerCell+1)

	for i, p := range positions {
		cellID := ci.cellID(p.X, p.Y)
		ci.Grid[cellID] = append(ci.Grid[cellID], i)
	}
}

// cellID computes a unique cell identifier using Szudzik's pairing function.
// Handles negative coordinates correctly, though clamped frame positions
// never produce them.
func (ci *CellIndex) cellID(x, y float64) int64 {
	cellX := int64(math.Floor(x / ci.CellSize))
	cellY := int64(math.Floor(y / ci.CellSize))
	return pairCells(cellX, cellY)
}

// pairCells maps a signed cell coordinate pair to a single int64 using zigzag
// encoding followed by Szudzik's pairing function.
func pairCells(cellX, cellY int64) int64 {
	var a, b int64
	if cellX >= 0 {
		a = 2 * cellX
	} else {
		a = -2*cellX - 1
	}
	if cellY >= 0 {
		b = 2 * cellY
	} else {
		b = -2*cellY - 1
	}

	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// RegionQuery returns indices of all positions within radius of positions[idx],
// including idx itself. Searches the 3x3 cell neighborhood, which covers the
// full radius when CellSize >= radius.
func (ci *CellIndex) RegionQuery(positions []Position, idx int, radius float64) []int {
	p := positions[idx]
	neighbors := []int{}
	r2 := radius * radius

	cellX := int64(math.Floor(p.X / ci.CellSize))
	cellY := int64(math.Floor(p.Y / ci.CellSize))

	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			neighborCellID := pairCells(cellX+dx, cellY+dy)

			for _, candidateIdx := range ci.Grid[neighborCellID] {
				candidate := positions[candidateIdx]
				ddx := candidate.X - p.X
				ddy := candidate.Y - p.Y
				if ddx*ddx+ddy*ddy <= r2 {
					neighbors = append(neighbors, candidateIdx)
				}
			}
		}
	}

	return neighbors
}

// Cluster is a connected group of detections in one frame.
type Cluster struct {
	Count     int
	CentroidX float64 // frame units
	CentroidY float64 // frame units
	Members   []int   // indices into the source position slice, ascending
}

// ClusterPositions groups positions into single-link clusters: two positions
// belong to the same cluster when a chain of neighbors within radius connects
// them. Every position lands in exactly one cluster (singletons included).
// Clusters are returned in first-seen order, so output is deterministic for a
// given input order.
func ClusterPositions(positions []Position, radius float64) []Cluster {
	if len(positions) == 0 {
		return nil
	}

	n := len(positions)
	labels := make([]int, n) // 0=unvisited, >0=clusterID
	clusterID := 0

	index := NewCellIndex(radius)
	index.Build(positions)

	for i := 0; i < n; i++ {
		if labels[i] != 0 {
			continue
		}

		clusterID++
		labels[i] = clusterID

		// Queue-based expansion over the neighbor graph.
		queue := index.RegionQuery(positions, i, radius)
		for j := 0; j < len(queue); j++ {
			idx := queue[j]
			if labels[idx] != 0 {
				continue
			}
			labels[idx] = clusterID
			queue = append(queue, index.RegionQuery(positions, idx, radius)...)
		}
	}

	return buildClusters(positions, labels, clusterID)
}

// buildClusters creates Cluster objects from expansion labels.
func buildClusters(positions []Position, labels []int, maxClusterID int) []Cluster {
	clusters := make([]Cluster, maxClusterID)

	for i, label := range labels {
		c := &clusters[label-1]
		c.Count++
		c.CentroidX += positions[i].X
		c.CentroidY += positions[i].Y
		c.Members = append(c.Members, i)
	}

	for i := range clusters {
		if clusters[i].Count > 0 {
			clusters[i].CentroidX /= float64(clusters[i].Count)
			clusters[i].CentroidY /= float64(clusters[i].Count)
		}
	}

	return clusters
}

// LargestCluster returns the cluster with the most members. Ties resolve to
// the earliest-seen cluster. Returns a zero Cluster when the slice is empty.
func LargestCluster(clusters []Cluster) Cluster {
	var best Cluster
	for _, c := range clusters {
		if c.Count > best.Count {
			best = c
		}
	}
	return best
}
