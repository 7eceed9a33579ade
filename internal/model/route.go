package model

import (
	"math"
	"time"
)

type RouteStatus string

const (
	RouteActive    RouteStatus = "ACTIVE"
	RouteInactive  RouteStatus = "INACTIVE"
	RouteSuspended RouteStatus = "SUSPENDED"
)

// MaxPopularityScore caps the popularity derived from bookings.
const MaxPopularityScore = 5.0

// Route is a priced origin/destination pair operated by a company. It
// keeps a running booking counter and a popularity score derived from it.
type Route struct {
	ID              uint64      // routes.id
	CompanyID       uint64      // routes.company_id
	Origin          string      // routes.origin
	Destination     string      // routes.destination
	Price           Money       // routes.price_cents + currency
	Status          RouteStatus // routes.status
	TotalBookings   int         // routes.total_bookings
	PopularityScore float64     // routes.popularity_score
	Version         uint32      // routes.version
	CreatedAt       time.Time   // routes.created_at
	UpdatedAt       time.Time   // routes.updated_at
}

func (r *Route) IsActive() bool { return r.Status == RouteActive }

// RecordBooking bumps the counter and recomputes popularity.
func (r *Route) RecordBooking() []Event {
	r.TotalBookings++
	r.PopularityScore = PopularityScore(r.TotalBookings)
	return []Event{newEvent(EventRouteBookingRecorded, r.ID, map[string]any{
		"total_bookings":   r.TotalBookings,
		"popularity_score": r.PopularityScore,
	})}
}

// PopularityScore is min(bookings/100, 5) rounded to two decimals.
func PopularityScore(bookings int) float64 {
	score := math.Min(float64(bookings)/100, MaxPopularityScore)
	return math.Round(score*100) / 100
}

func (r *Route) Clone() *Route {
	c := *r
	return &c
}
