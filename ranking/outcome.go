package ranking

import (
	"context"
	"errors"

	"airquality-service/datasource"
	"airquality-service/models"
)

// Kind tags how a single location fetch ended
type Kind int

const (
	// Success carries an observation to classify
	Success Kind = iota
	// SoftFail means the provider had nothing usable; it is dropped silently
	SoftFail
	// HardFail is a transport, auth or payload failure that gets reported
	HardFail
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case SoftFail:
		return "soft_fail"
	case HardFail:
		return "hard_fail"
	default:
		return "unknown"
	}
}

// Outcome is the result of fetching one location
type Outcome struct {
	Kind        Kind
	Observation models.Observation
	Err         error
}

// Succeeded wraps a usable observation
func Succeeded(obs models.Observation) Outcome {
	return Outcome{Kind: Success, Observation: obs}
}

// SoftFailed marks a location with no usable data
func SoftFailed() Outcome {
	return Outcome{Kind: SoftFail}
}

// HardFailed marks a location whose fetch failed and must be reported
func HardFailed(err error) Outcome {
	return Outcome{Kind: HardFail, Err: err}
}

// FetchFunc fetches one location. It must not share state with other calls.
type FetchFunc func(ctx context.Context, location string) Outcome

// Classify maps a provider fetch result onto an Outcome. ErrNoReading is a
// soft fail; every other error is hard.
func Classify(obs models.Observation, err error) Outcome {
	switch {
	case err == nil:
		return Succeeded(obs)
	case errors.Is(err, datasource.ErrNoReading):
		return SoftFailed()
	default:
		return HardFailed(err)
	}
}

// FromFeed adapts a StationFeed into a FetchFunc
func FromFeed(feed datasource.StationFeed) FetchFunc {
	return func(ctx context.Context, location string) Outcome {
		return Classify(feed.FetchStation(ctx, location))
	}
}
