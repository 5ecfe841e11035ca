package api

import (
	"fmt"

	"fleetsplit/internal/config"
	"fleetsplit/internal/generate"
	"fleetsplit/internal/model"
	"fleetsplit/internal/opt"
)

func validateOptimizeRequest(req *model.OptimizeRequest, lim config.OptimizerConfig) error {
	if req.DriverCount < 1 {
		return fmt.Errorf("driverCount must be >= 1")
	}
	if lim.MaxDrivers > 0 && req.DriverCount > lim.MaxDrivers {
		return fmt.Errorf("driverCount must be <= %d", lim.MaxDrivers)
	}
	for _, s := range req.Strategies {
		if _, err := opt.ParseStrategy(s); err != nil {
			return err
		}
	}
	if len(req.Deliveries) > 0 {
		if req.DeliveryCount != 0 && req.DeliveryCount != len(req.Deliveries) {
			return fmt.Errorf("deliveryCount %d does not match %d deliveries", req.DeliveryCount, len(req.Deliveries))
		}
		if lim.MaxDeliveries > 0 && len(req.Deliveries) > lim.MaxDeliveries {
			return fmt.Errorf("at most %d deliveries allowed", lim.MaxDeliveries)
		}
		seen := make(map[int]struct{}, len(req.Deliveries))
		for _, p := range req.Deliveries {
			if p.ID <= 0 {
				return fmt.Errorf("delivery id must be > 0, got %d", p.ID)
			}
			if err := checkCoordinate("x", p.X, lim.MaxCoordinate); err != nil {
				return fmt.Errorf("delivery %d: %w", p.ID, err)
			}
			if err := checkCoordinate("y", p.Y, lim.MaxCoordinate); err != nil {
				return fmt.Errorf("delivery %d: %w", p.ID, err)
			}
			if _, dup := seen[p.ID]; dup {
				return fmt.Errorf("duplicate delivery id %d", p.ID)
			}
			seen[p.ID] = struct{}{}
		}
		return nil
	}
	if req.DeliveryCount < 1 {
		return fmt.Errorf("deliveryCount must be >= 1")
	}
	if lim.MaxDeliveries > 0 && req.DeliveryCount > lim.MaxDeliveries {
		return fmt.Errorf("deliveryCount must be <= %d", lim.MaxDeliveries)
	}
	for _, c := range []struct {
		name string
		v    int
	}{{"minX", req.MinX}, {"maxX", req.MaxX}, {"minY", req.MinY}, {"maxY", req.MaxY}} {
		if err := checkCoordinate(c.name, c.v, lim.MaxCoordinate); err != nil {
			return err
		}
	}
	return requestBounds(req).Validate()
}

// checkCoordinate enforces |v| <= limit. A non-positive limit disables the check.
func checkCoordinate(name string, v, limit int) error {
	if limit > 0 && (v > limit || v < -limit) {
		return fmt.Errorf("%s %d outside [-%d, %d]", name, v, limit, limit)
	}
	return nil
}

func requestBounds(req *model.OptimizeRequest) generate.Bounds {
	return generate.Bounds{MinX: req.MinX, MaxX: req.MaxX, MinY: req.MinY, MaxY: req.MaxY}
}
