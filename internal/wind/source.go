package wind

import (
	"context"
	"time"
)

// GriddedDataSource is the read-only contract for a regularly gridded
// space x height x time dataset. Implementations must be safe for
// concurrent readers; retry policy, if any, lives in the implementation.
type GriddedDataSource interface {
	// GridIndex resolves a geographic position to the nearest native grid index.
	GridIndex(ctx context.Context, lat, lon float64) (GridIndex, error)

	// Coordinates returns the true position of every index, in order.
	Coordinates(ctx context.Context, idx []GridIndex) ([]LatLon, error)

	// Bounds returns the index rectangle the source can serve.
	Bounds(ctx context.Context) (GridBounds, error)

	// Heights lists the natively available heights of v, ascending.
	Heights(ctx context.Context, v Variable) ([]int, error)

	// Timestamps returns the dataset's full ordered time axis.
	Timestamps(ctx context.Context) ([]time.Time, error)

	// Slab returns v at height for one cell over time steps t0..t1 inclusive.
	Slab(ctx context.Context, v Variable, height int, idx GridIndex, t0, t1 int) ([]float64, error)
}

// Reloader is implemented by sources that cache dataset metadata and can
// re-read it from their backend.
type Reloader interface {
	Reload(ctx context.Context) error
}
