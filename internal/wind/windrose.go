package wind

import (
	"encoding/json"
	"math"
	"time"

	"github.com/iancoleman/orderedmap"
)

// Speed classes, lower bound inclusive except that exactly 20 m/s still
// belongs to the 10-20 class.
var SpeedClasses = [4]string{"<5 m/s", "5-10 m/s", "10-20 m/s", ">20 m/s"}

// Sectors are 45 degree direction sectors centered on the compass points.
var Sectors = [8]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// WindroseAnyKey labels the direction-only row.
const WindroseAnyKey = "Any"

// Windrose holds, per speed class, the percentage of each sector's
// observations in that class, plus each sector's share of all observations.
type Windrose struct {
	Classes [4][8]float64
	Any     [8]float64
	// Observations is the number of joined rows that were classified.
	Observations int
}

// MarshalJSON renders the classes in ascending speed order followed by "Any".
func (w Windrose) MarshalJSON() ([]byte, error) {
	o := orderedmap.New()
	for i, name := range SpeedClasses {
		o.Set(name, w.Classes[i][:])
	}
	o.Set(WindroseAnyKey, w.Any[:])
	return json.Marshal(o)
}

// SpeedClass returns the index into SpeedClasses for speed s.
func SpeedClass(s float64) int {
	switch {
	case s < 5:
		return 0
	case s < 10:
		return 1
	case s <= 20:
		return 2
	default:
		return 3
	}
}

// Sector returns the index into Sectors for direction d in degrees.
func Sector(d float64) int {
	d = NormalizeDirection(d)
	return int(math.Floor((d+22.5)/45)) % 8
}

// NormalizeDirection maps d into [0, 360).
func NormalizeDirection(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	if d >= 360 {
		d = 0
	}
	return d
}

// AggregateWindrose inner-joins speed and direction on timestamp and
// classifies every row where both values are present.
func AggregateWindrose(speed, direction Series) Windrose {
	dirs := make(map[time.Time]float64, len(direction.Points))
	for _, p := range direction.Points {
		dirs[p.Timestamp.UTC()] = p.Value
	}

	var (
		counts  [4][8]int
		sectors [8]int
		total   int
	)
	for _, p := range speed.Points {
		d, ok := dirs[p.Timestamp.UTC()]
		if !ok || math.IsNaN(d) || math.IsNaN(p.Value) {
			continue
		}
		sec := Sector(d)
		counts[SpeedClass(p.Value)][sec]++
		sectors[sec]++
		total++
	}

	var w Windrose
	w.Observations = total
	for sec := range Sectors {
		if sectors[sec] == 0 {
			continue
		}
		for c := range SpeedClasses {
			w.Classes[c][sec] = 100 * float64(counts[c][sec]) / float64(sectors[sec])
		}
		if total > 0 {
			w.Any[sec] = 100 * float64(sectors[sec]) / float64(total)
		}
	}
	return w
}
