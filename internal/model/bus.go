package model

import "time"

type BusStatus string

const (
	BusActive      BusStatus = "ACTIVE"
	BusMaintenance BusStatus = "MAINTENANCE"
	BusInactive    BusStatus = "INACTIVE"
)

// Bus is the vehicle assigned to trips. Only ACTIVE buses can be scheduled.
type Bus struct {
	ID          uint64    // buses.id
	CompanyID   uint64    // buses.company_id
	PlateNumber string    // buses.plate_number
	Capacity    int       // buses.capacity
	Status      BusStatus // buses.status
	CreatedAt   time.Time // buses.created_at
	UpdatedAt   time.Time // buses.updated_at
}

func (b *Bus) IsActive() bool { return b.Status == BusActive }

// SeatCapacity falls back to DefaultBusCapacity for unset rows.
func (b *Bus) SeatCapacity() int {
	if b.Capacity <= 0 {
		return DefaultBusCapacity
	}
	return b.Capacity
}

func (b *Bus) Clone() *Bus {
	c := *b
	return &c
}
