package maker

import (
	"time"

	"github.com/gregtusar/dexmaker/pkg/models"
)

type EventType string

const (
	EventOffersCreated   EventType = "offers_created"
	EventOffersCancelled EventType = "offers_cancelled"
	EventError           EventType = "error"
)

type Event struct {
	Type       EventType          `json:"type"`
	CycleID    string             `json:"cycle_id,omitempty"`
	Offers     []models.Offer     `json:"offers,omitempty"`
	Submission *models.Submission `json:"submission,omitempty"`
	Error      string             `json:"error,omitempty"`
	Time       time.Time          `json:"time"`
}

// Observer receives market maker events. Publish must not block.
type Observer interface {
	Publish(Event)
}

func (mm *MarketMaker) publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	for _, o := range mm.observers {
		o.Publish(ev)
	}
}
