package tracker

import (
	"errors"
	"math"
)

// lapLarge is used as infinity when searching for minimum reduced costs
const lapLarge = 1000000.0

// lapjv solves the dense square linear assignment problem using the
// Jonker-Volgenant algorithm
type lapjv struct {
	n    int
	cost [][]float64
	// x maps row to assigned column, y maps column to assigned row
	x, y []int
	// v are the column dual variables
	v []float64
}

// solveLAPJV returns the row to column and column to row assignment that
// minimises total cost of the square matrix
func solveLAPJV(cost [][]float64) (x, y []int, err error) {

	n := len(cost)
	s := &lapjv{
		n:    n,
		cost: cost,
		x:    make([]int, n),
		y:    make([]int, n),
		v:    make([]float64, n),
	}

	free := make([]int, n)
	nFree := s.columnReduction(free)

	for i := 0; nFree > 0 && i < 2; i++ {
		nFree = s.augmentingRowReduction(free, nFree)
	}

	if nFree > 0 {
		if err := s.augment(free[:nFree]); err != nil {
			return nil, nil, err
		}
	}

	return s.x, s.y, nil
}

// columnReduction performs column reduction and reduction transfer and
// returns the number of unassigned rows placed in free
func (s *lapjv) columnReduction(free []int) int {

	unique := make([]bool, s.n)

	for i := 0; i < s.n; i++ {
		s.x[i] = -1
		s.v[i] = lapLarge
		s.y[i] = 0
		unique[i] = true
	}

	for i := 0; i < s.n; i++ {
		for j := 0; j < s.n; j++ {
			if c := s.cost[i][j]; c < s.v[j] {
				s.v[j] = c
				s.y[j] = i
			}
		}
	}

	for j := s.n - 1; j >= 0; j-- {
		i := s.y[j]

		if s.x[i] < 0 {
			s.x[i] = j
		} else {
			unique[i] = false
			s.y[j] = -1
		}
	}

	nFree := 0

	for i := 0; i < s.n; i++ {

		if s.x[i] < 0 {
			free[nFree] = i
			nFree++
			continue
		}

		if !unique[i] {
			continue
		}

		j := s.x[i]
		min := lapLarge

		for j2 := 0; j2 < s.n; j2++ {
			if j2 == j {
				continue
			}

			if c := s.cost[i][j2] - s.v[j2]; c < min {
				min = c
			}
		}

		s.v[j] -= min
	}

	return nFree
}

// augmentingRowReduction tries to assign free rows by lowering column
// prices and returns the number of rows still free
func (s *lapjv) augmentingRowReduction(free []int, nFree int) int {

	current := 0
	newFree := 0
	iterations := 0

	for current < nFree {

		iterations++
		i := free[current]
		current++

		// find the lowest and second lowest reduced cost of row i
		j1, u1 := 0, s.cost[i][0]-s.v[0]
		j2, u2 := -1, lapLarge

		for j := 1; j < s.n; j++ {
			c := s.cost[i][j] - s.v[j]

			if c >= u2 {
				continue
			}

			if c >= u1 {
				u2, j2 = c, j
			} else {
				u2, j2 = u1, j1
				u1, j1 = c, j
			}
		}

		i0 := s.y[j1]
		lowered := s.v[j1] - (u2 - u1)
		lowers := lowered < s.v[j1]

		if iterations < current*s.n {
			if lowers {
				s.v[j1] = lowered
			} else if i0 >= 0 && j2 >= 0 {
				j1 = j2
				i0 = s.y[j2]
			}

			if i0 >= 0 {
				if lowers {
					current--
					free[current] = i0
				} else {
					free[newFree] = i0
					newFree++
				}
			}

		} else if i0 >= 0 {
			free[newFree] = i0
			newFree++
		}

		s.x[i] = j1
		s.y[j1] = i
	}

	return newFree
}

// augment assigns each remaining free row along a shortest augmenting path
func (s *lapjv) augment(free []int) error {

	pred := make([]int, s.n)

	for _, start := range free {

		j := s.shortestPath(start, pred)

		if j < 0 || j >= s.n {
			return errors.New("lapjv: augmenting path not found")
		}

		for k, i := 0, -1; i != start; k++ {

			if k >= s.n {
				return errors.New("lapjv: augmenting path loops")
			}

			i = pred[j]
			s.y[j] = i
			j, s.x[i] = s.x[i], j
		}
	}

	return nil
}

// shortestPath runs a Dijkstra search over reduced costs from row start and
// returns the unassigned column it reaches
func (s *lapjv) shortestPath(start int, pred []int) int {

	cols := make([]int, s.n)
	d := make([]float64, s.n)

	for j := 0; j < s.n; j++ {
		cols[j] = j
		pred[j] = start
		d[j] = s.cost[start][j] - s.v[j]
	}

	lo, hi, ready := 0, 0, 0
	end := -1

	for end == -1 {

		if lo == hi {
			ready = lo
			hi = s.findMinimum(lo, d, cols)

			for k := lo; k < hi; k++ {
				if j := cols[k]; s.y[j] < 0 {
					end = j
				}
			}
		}

		if end == -1 {
			end = s.scan(&lo, &hi, d, cols, pred)
		}
	}

	min := d[cols[lo]]

	for _, j := range cols[:ready] {
		s.v[j] += d[j] - min
	}

	return end
}

// findMinimum moves the columns with minimum d to the front of the todo
// section of cols starting at lo and returns the new end of that section
func (s *lapjv) findMinimum(lo int, d []float64, cols []int) int {

	hi := lo + 1
	min := d[cols[lo]]

	for k := hi; k < s.n; k++ {
		j := cols[k]

		if d[j] > min {
			continue
		}

		if d[j] < min {
			hi = lo
			min = d[j]
		}

		cols[k] = cols[hi]
		cols[hi] = j
		hi++
	}

	return hi
}

// scan relaxes the todo columns through the columns on the scan list.  It
// returns an unassigned column reached at minimum distance or -1
func (s *lapjv) scan(lo, hi *int, d []float64, cols, pred []int) int {

	for *lo != *hi {

		j := cols[*lo]
		*lo++
		i := s.y[j]
		min := d[j]
		h := s.cost[i][j] - s.v[j] - min

		for k := *hi; k < s.n; k++ {
			j = cols[k]
			reduced := s.cost[i][j] - s.v[j] - h

			if reduced >= d[j] {
				continue
			}

			d[j] = reduced
			pred[j] = i

			if reduced == min {
				if s.y[j] < 0 {
					return j
				}

				cols[k] = cols[*hi]
				cols[*hi] = j
				*hi++
			}
		}
	}

	return -1
}

// linearAssignment matches rows to columns of a rectangular cost matrix,
// rejecting any pairing that costs more than thresh.  It returns the matched
// index pairs plus the unmatched row and column indexes
func linearAssignment(cost [][]float32, rows, cols int,
	thresh float32) (matches [][2]int, unmatchedRows, unmatchedCols []int, err error) {

	if rows == 0 || cols == 0 {
		for i := 0; i < rows; i++ {
			unmatchedRows = append(unmatchedRows, i)
		}

		for j := 0; j < cols; j++ {
			unmatchedCols = append(unmatchedCols, j)
		}

		return
	}

	if thresh >= math.MaxFloat32 {
		return nil, nil, nil, errors.New("assignment threshold must be finite")
	}

	// extend to a square matrix where each row and column can fall back to a
	// dummy partner at half the threshold cost
	n := rows + cols
	ext := make([][]float64, n)

	for i := range ext {
		ext[i] = make([]float64, n)

		for j := range ext[i] {
			switch {
			case i < rows && j < cols:
				ext[i][j] = float64(cost[i][j])
			case i >= rows && j >= cols:
				ext[i][j] = 0
			default:
				ext[i][j] = float64(thresh) / 2
			}
		}
	}

	x, y, err := solveLAPJV(ext)

	if err != nil {
		return nil, nil, nil, err
	}

	for i := 0; i < rows; i++ {
		if x[i] >= 0 && x[i] < cols {
			matches = append(matches, [2]int{i, x[i]})
		} else {
			unmatchedRows = append(unmatchedRows, i)
		}
	}

	for j := 0; j < cols; j++ {
		if y[j] < 0 || y[j] >= rows {
			unmatchedCols = append(unmatchedCols, j)
		}
	}

	return matches, unmatchedRows, unmatchedCols, nil
}
