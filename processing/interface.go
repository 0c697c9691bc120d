package processing

import (
	"context"
	"time"

	"github.com/homesgap/density/model"
)

// Builder builds the record of one area.
type Builder interface {
	Build(ctx context.Context, code string) (model.AreaDensityRecord, error)
}

// Cache holds records computed earlier, by source version.
type Cache interface {
	Get(ctx context.Context, code, version string) (model.AreaDensityRecord, bool, error)
	Put(ctx context.Context, version string, rec model.AreaDensityRecord) error
}

// Target consumes the records of a run until the channel is closed. A target that fails
// must keep reading the channel until it is closed.
type Target interface {
	WriteRecords(<-chan model.AreaDensityRecord) error
}

// Observer is told about every finished area.
type Observer interface {
	ObserveArea(result Result, elapsed time.Duration)
}
