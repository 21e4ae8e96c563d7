package geo

import "sort"

// StoreCandidate is a read-only snapshot of a store from the directory.
type StoreCandidate struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Coordinate Coordinate `json:"coordinate"`
	Address    string     `json:"address"`
}

// Match pairs a store with its distance in meters from an origin.
type Match struct {
	Store    StoreCandidate `json:"store"`
	Distance float64        `json:"distance"`
}

// SelectNearest returns the candidate closest to origin. Ties keep the first
// candidate in input order. ok is false when candidates is empty.
func SelectNearest(origin Coordinate, candidates []StoreCandidate) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}
	best := Match{Store: candidates[0], Distance: Distance(origin, candidates[0].Coordinate)}
	for _, c := range candidates[1:] {
		d := Distance(origin, c.Coordinate)
		if d < best.Distance {
			best = Match{Store: c, Distance: d}
		}
	}
	return best, true
}

// SelectWithinRadius returns every candidate whose distance from origin is at
// most radiusMeters, in input order.
func SelectWithinRadius(origin Coordinate, candidates []StoreCandidate, radiusMeters float64) []Match {
	out := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		d := Distance(origin, c.Coordinate)
		if d <= radiusMeters {
			out = append(out, Match{Store: c, Distance: d})
		}
	}
	return out
}

// SortByDistance orders matches by ascending distance, keeping input order for equal distances.
func SortByDistance(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Distance < matches[j].Distance
	})
}
