package wind

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/iancoleman/orderedmap"
)

func series(v Variable, start time.Time, values ...float64) Series {
	s := Series{Variable: v}
	for i, x := range values {
		s.Points = append(s.Points, Point{Timestamp: start.Add(time.Duration(i) * time.Hour), Value: x})
	}
	return s
}

func TestClassification(t *testing.T) {
	speeds := map[float64]int{0: 0, 4.99: 0, 5: 1, 9.99: 1, 10: 2, 20: 2, 20.01: 3}
	for s, want := range speeds {
		if got := SpeedClass(s); got != want {
			t.Errorf("SpeedClass(%v) = %d; want %d", s, got, want)
		}
	}
	dirs := map[float64]string{
		0: "N", 22.49: "N", 22.5: "NE", 90: "E", 180: "S", 202.5: "SW",
		225: "SW", 270: "W", 315: "NW", 337.49: "NW", 337.5: "N", 359.99: "N", 360: "N", -10: "N",
	}
	for d, want := range dirs {
		if got := Sectors[Sector(d)]; got != want {
			t.Errorf("Sector(%v) = %s; want %s", d, got, want)
		}
	}
}

func TestAggregateWindrose(t *testing.T) {
	t0 := time.Date(2010, 3, 2, 0, 0, 0, 0, time.UTC)
	speed := series(VarWindspeed, t0, 3, 7, 12, 25, 4, math.NaN(), 6)
	// Last speed row has no matching direction (shorter series).
	dir := series(VarWinddirection, t0, 0, 10, 350, 90, 95, 180)

	w := AggregateWindrose(speed, dir)
	if w.Observations != 5 {
		t.Fatalf("Observations = %d; want 5", w.Observations)
	}

	n, e := 0, 2
	// N has speeds 3, 7, 12; E has 25, 4.
	wantN := [4]float64{100.0 / 3, 100.0 / 3, 100.0 / 3, 0}
	wantE := [4]float64{50, 0, 0, 50}
	for c := range SpeedClasses {
		if !approx(w.Classes[c][n], wantN[c], 1e-9) {
			t.Errorf("class %s N = %v; want %v", SpeedClasses[c], w.Classes[c][n], wantN[c])
		}
		if !approx(w.Classes[c][e], wantE[c], 1e-9) {
			t.Errorf("class %s E = %v; want %v", SpeedClasses[c], w.Classes[c][e], wantE[c])
		}
		for sec := range Sectors {
			if sec != n && sec != e && w.Classes[c][sec] != 0 {
				t.Errorf("empty sector %s reports %v", Sectors[sec], w.Classes[c][sec])
			}
		}
	}
	if !approx(w.Any[n], 60, 1e-9) || !approx(w.Any[e], 40, 1e-9) {
		t.Errorf("Any = %v; want N=60 E=40", w.Any)
	}

	// Percentages per observed sector add up to 100.
	for _, sec := range []int{n, e} {
		var sum float64
		for c := range SpeedClasses {
			sum += w.Classes[c][sec]
		}
		if !approx(sum, 100, 1e-9) {
			t.Errorf("sector %s sums to %v", Sectors[sec], sum)
		}
	}
}

func TestAggregateWindroseEmpty(t *testing.T) {
	w := AggregateWindrose(Series{}, Series{})
	for c := range SpeedClasses {
		for sec := range Sectors {
			if w.Classes[c][sec] != 0 {
				t.Fatalf("empty windrose has %v", w.Classes[c][sec])
			}
		}
	}
}

func TestWindroseJSON(t *testing.T) {
	var w Windrose
	w.Classes[0][0] = 100
	w.Any[0] = 100
	b, err := json.Marshal(w)
	if err != nil {
		t.Fatal(err)
	}

	o := orderedmap.New()
	if err := json.Unmarshal(b, o); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	want := append(SpeedClasses[:], WindroseAnyKey)
	if got := o.Keys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("keys = %v; want %v", got, want)
	}
	first, _ := o.Get("<5 m/s")
	row, ok := first.([]interface{})
	if !ok || len(row) != 8 || row[0] != 100.0 {
		t.Fatalf("<5 m/s row = %v", first)
	}
}

func TestSelectTimeIndices(t *testing.T) {
	t0 := time.Date(2010, 3, 2, 0, 0, 0, 0, time.UTC)
	var ts []time.Time
	for i := 0; i < 10; i++ {
		ts = append(ts, t0.Add(time.Duration(i)*time.Hour))
	}

	r := SelectTimeIndices(ts, t0.Add(2*time.Hour), t0.Add(5*time.Hour))
	if r.Len() != 4 || r.Indices[0] != 2 || r.Indices[3] != 5 {
		t.Fatalf("got %v; want 2..5 inclusive", r.Indices)
	}
	if !r.Timestamps[0].Equal(ts[2]) {
		t.Fatalf("timestamps misaligned: %v", r.Timestamps)
	}

	if r := SelectTimeIndices(ts, t0.Add(20*time.Hour), t0.Add(30*time.Hour)); r.Len() != 0 {
		t.Fatalf("got %v; want empty", r.Indices)
	}
}

func TestSeriesJSON(t *testing.T) {
	t0 := time.Date(2010, 3, 2, 1, 0, 0, 0, time.UTC)
	b, err := json.Marshal(series(VarWindspeed, t0, 3.5, math.NaN()))
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"timestamp":"2010-03-02 01:00:00","windspeed":3.5},{"timestamp":"2010-03-02 02:00:00","windspeed":null}]`
	if string(b) != want {
		t.Fatalf("got %s\nwant %s", b, want)
	}
}

func TestDatasetName(t *testing.T) {
	if got := VarWindspeed.DatasetName(80); got != "windspeed_80m" {
		t.Fatalf("DatasetName = %q", got)
	}
	v, h, ok := ParseDatasetName("inversemoninobukhovlength_2m")
	if !ok || v != VarStability || h != 2 {
		t.Fatalf("ParseDatasetName = %v %v %v", v, h, ok)
	}
	for _, bad := range []string{"coordinates", "windspeed_m", "windspeed_80", "_80m"} {
		if _, _, ok := ParseDatasetName(bad); ok {
			t.Errorf("ParseDatasetName(%q) accepted", bad)
		}
	}
}

func TestQueryKeyDistinguishesNearbyRequests(t *testing.T) {
	base := Query{
		Lat:      40.7128,
		Lon:      -74.0059,
		Height:   50,
		Start:    time.Date(2010, 3, 2, 0, 0, 0, 0, time.UTC),
		Stop:     time.Date(2010, 3, 3, 0, 0, 0, 0, time.UTC),
		Spatial:  SpatialIDW,
		Vertical: VerticalLinear,
	}
	lat := base
	lat.Lat += 1e-8
	stop := base
	stop.Stop = stop.Stop.Add(time.Millisecond)
	method := base
	method.Spatial = SpatialCubic

	for name, q := range map[string]Query{"lat": lat, "stop": stop, "method": method} {
		if q.Key("windspeed") == base.Key("windspeed") {
			t.Errorf("%s change shares the cache key %q", name, base.Key("windspeed"))
		}
	}

	same := base
	same.Start = base.Start.In(time.FixedZone("EST", -5*3600))
	if same.Key("windspeed") != base.Key("windspeed") {
		t.Error("the same instant in another zone changed the key")
	}
}
