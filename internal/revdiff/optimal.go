package revdiff

import "math"

// OptimalMatcher pairs lines by maximum total overlap across all
// candidates (the assignment problem, solved with the Hungarian method).
// Scores at or below Threshold count as no edge. It costs O(n³) in the
// number of unmatched lines, against O(n²) for GreedyMatcher.
type OptimalMatcher struct {
	Threshold float64
}

// Match implements Matcher.
func (o OptimalMatcher) Match(oldLines, newLines []Line) []Pair {
	rows, cols := len(newLines), len(oldLines)
	if rows == 0 || cols == 0 {
		return nil
	}
	size := rows
	if cols > size {
		size = cols
	}

	oldSets := make([]map[string]struct{}, cols)
	for j, line := range oldLines {
		oldSets[j] = tokenSet(line.Text)
	}
	weight := make([][]float64, size)
	cost := make([][]float64, size)
	for i := range weight {
		weight[i] = make([]float64, size)
		cost[i] = make([]float64, size)
		if i >= rows {
			continue
		}
		newSet := tokenSet(newLines[i].Text)
		for j := 0; j < cols; j++ {
			if score := jaccardSets(oldSets[j], newSet); score > o.Threshold {
				weight[i][j] = score
				cost[i][j] = -score
			}
		}
	}

	var pairs []Pair
	for i, j := range hungarian(cost) {
		if i >= rows || j >= cols || weight[i][j] == 0 {
			continue
		}
		pairs = append(pairs, Pair{Old: oldLines[j], New: newLines[i], Score: weight[i][j]})
	}
	return pairs
}

// hungarian solves the square minimum-cost assignment problem and returns
// the column assigned to each row.
func hungarian(cost [][]float64) []int {
	n := len(cost)
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}
		used := make([]bool, n+1)
		for {
			used[j0] = true
			i0, delta, j1 := p[j0], math.Inf(1), 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	assignment := make([]int, n)
	for j := 1; j <= n; j++ {
		if p[j] > 0 {
			assignment[p[j]-1] = j - 1
		}
	}
	return assignment
}
