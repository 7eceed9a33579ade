package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/iliyamo/bus-seat-reservation/internal/config"
	"github.com/iliyamo/bus-seat-reservation/internal/model"
	"github.com/iliyamo/bus-seat-reservation/internal/service"
)

// seedDemo creates one route, one bus and a trip leaving tomorrow at
// 08:00 trip time so a fresh in-memory server has something to book.
func seedDemo(ctx context.Context, b *backend, sched *service.TripScheduler, cfg config.Config) error {
	price, err := model.NewMoney("45.50", cfg.DefaultCurrency)
	if err != nil {
		return err
	}
	route := &model.Route{CompanyID: 1, Origin: "Lima", Destination: "Arequipa", Price: price, Status: model.RouteActive}
	if err := b.routes.Create(ctx, route); err != nil {
		return fmt.Errorf("route: %w", err)
	}
	bus := &model.Bus{CompanyID: 1, PlateNumber: "DEMO-001", Capacity: model.DefaultBusCapacity, Status: model.BusActive}
	if err := b.buses.Create(ctx, bus); err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	tomorrow := time.Now().In(cfg.TripLocation).AddDate(0, 0, 1).Format(time.DateOnly)
	dep, arr, err := service.ParseTripTimes(tomorrow, "08:00", "00:30", cfg.TripLocation)
	if err != nil {
		return err
	}
	trip, err := sched.CreateTrip(ctx, service.CreateTripInput{RouteID: route.ID, BusID: bus.ID, DepartureAt: dep, ArrivalAt: arr})
	if err != nil {
		return fmt.Errorf("trip: %w", err)
	}
	log.Printf("seed: route=%d bus=%d trip=%d departs %s", route.ID, bus.ID, trip.ID, dep.Format(time.RFC3339))
	return nil
}
