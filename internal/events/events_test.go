package events

import (
	"context"
	"errors"
	"testing"

	"lotto/internal/models"
)

type failing struct{}

func (failing) Write(ctx context.Context, evt models.Event) error {
	return errors.New("disk full")
}

func TestBus(t *testing.T) {
	rec := &Recorder{}
	bus := NewBus(failing{}, LogSink{})
	bus.Add(rec)

	bus.Publish(context.Background(),
		models.Event{Kind: models.EventRoundCreated, RoundID: 1},
		models.Event{Kind: models.EventTicketClaimed, RoundID: 1, TicketID: 3},
	)

	all := rec.Events()
	if len(all) != 2 {
		t.Fatalf("Expected 2 events despite a failing sink, but got %d", len(all))
	}
	if all[0].Kind != models.EventRoundCreated {
		t.Errorf("Expected events in publish order, but got %s first", all[0].Kind)
	}
	claimed := rec.Events(models.EventTicketClaimed)
	if len(claimed) != 1 || claimed[0].TicketID != 3 {
		t.Errorf("Expected one claim event for ticket 3, but got %+v", claimed)
	}
}
