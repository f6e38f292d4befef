package wind

// SpatialMethod selects how per-cell readings collapse onto the query point.
// The zero value is invalid.
type SpatialMethod int

const (
	SpatialNearest SpatialMethod = iota + 1
	SpatialLinear
	SpatialCubic
	SpatialIDW
)

var spatialNames = map[SpatialMethod]string{
	SpatialNearest: "nearest",
	SpatialLinear:  "linear",
	SpatialCubic:   "cubic",
	SpatialIDW:     "idw",
}

func (m SpatialMethod) String() string {
	if s, ok := spatialNames[m]; ok {
		return s
	}
	return "unknown"
}

// Validate rejects values outside the closed set of methods.
func (m SpatialMethod) Validate() error {
	if _, ok := spatialNames[m]; !ok {
		return validationErrorf("invalid spatial_interpolation; choose one of: nearest, linear, cubic, idw")
	}
	return nil
}

// ParseSpatialMethod maps a request name onto a SpatialMethod.
func ParseSpatialMethod(s string) (SpatialMethod, error) {
	for m, name := range spatialNames {
		if name == s {
			return m, nil
		}
	}
	return 0, validationErrorf("invalid spatial_interpolation %q; choose one of: nearest, linear, cubic, idw", s)
}

// VerticalMethod selects how two bracket heights combine into the query
// height. The zero value is invalid.
type VerticalMethod int

const (
	VerticalNearest VerticalMethod = iota + 1
	VerticalLinear
	VerticalNeutralPower
	VerticalStabilityPower
)

var verticalNames = map[VerticalMethod]string{
	VerticalNearest:        "nearest",
	VerticalLinear:         "linear",
	VerticalNeutralPower:   "neutral_power",
	VerticalStabilityPower: "stability_power",
}

func (m VerticalMethod) String() string {
	if s, ok := verticalNames[m]; ok {
		return s
	}
	return "unknown"
}

// Validate rejects values outside the closed set of methods.
func (m VerticalMethod) Validate() error {
	if _, ok := verticalNames[m]; !ok {
		return validationErrorf("invalid vertical_interpolation; choose one of: nearest, linear, neutral_power, stability_power")
	}
	return nil
}

// NeedsStability reports whether the method reads the stability indicator.
func (m VerticalMethod) NeedsStability() bool {
	return m == VerticalStabilityPower
}

// ParseVerticalMethod maps a request name onto a VerticalMethod.
func ParseVerticalMethod(s string) (VerticalMethod, error) {
	for m, name := range verticalNames {
		if name == s {
			return m, nil
		}
	}
	return 0, validationErrorf("invalid vertical_interpolation %q; choose one of: nearest, linear, neutral_power, stability_power", s)
}
