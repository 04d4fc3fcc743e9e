package shipping

import (
	"context"
	"fmt"
	"sync"
)

// Fake is an in-process Provider used when no aggregator is configured.
type Fake struct {
	mu        sync.Mutex
	seq       int
	shipments map[string]ShipmentRequest
	status    map[string]string
}

func NewFake() *Fake {
	return &Fake{shipments: make(map[string]ShipmentRequest), status: make(map[string]string)}
}

func (f *Fake) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s%d", prefix, f.seq)
}

func (f *Fake) CreateShipment(_ context.Context, req ShipmentRequest) (Shipment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next("SHP")
	f.shipments[id] = req
	return Shipment{OrderID: req.OrderID, ShipmentID: id, Status: "NEW"}, nil
}

func (f *Fake) CreateReturn(ctx context.Context, req ShipmentRequest) (Shipment, error) {
	return f.CreateShipment(ctx, req)
}

func (f *Fake) AssignAWB(_ context.Context, shipmentID string) (AWB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.shipments[shipmentID]; !ok {
		return AWB{}, fmt.Errorf("unknown shipment %s", shipmentID)
	}
	awb := "AWB" + shipmentID
	f.status[awb] = "PICKUP SCHEDULED"
	return AWB{Code: awb, Courier: "Fake Express"}, nil
}

func (f *Fake) GenerateLabel(_ context.Context, shipmentID string) (string, error) {
	return "https://labels.invalid/" + shipmentID + ".pdf", nil
}

func (f *Fake) SchedulePickup(context.Context, string) error { return nil }

func (f *Fake) Track(_ context.Context, awb string) (Tracking, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.status[awb]
	if !ok {
		return Tracking{}, fmt.Errorf("unknown awb %s", awb)
	}
	return Tracking{AWB: awb, Status: status, Delivered: IsDelivered(status)}, nil
}

// SetStatus changes the tracking status reported for awb.
func (f *Fake) SetStatus(awb, status string) {
	f.mu.Lock()
	f.status[awb] = status
	f.mu.Unlock()
}
