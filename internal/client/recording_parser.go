package client

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"

	"replay/crumbs/internal/domain"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// rrweb event type for custom events; breadcrumbs travel inside them
const rrwebCustomEvent = 5

type rrwebEvent struct {
	Type      int             `json:"type"`
	Timestamp int64           `json:"timestamp"` // ms
	Data      json.RawMessage `json:"data"`
}

type customEventData struct {
	Tag     string          `json:"tag"`
	Payload json.RawMessage `json:"payload"`
}

type breadcrumbPayload struct {
	Type      string  `json:"type"`
	Category  string  `json:"category"`
	Timestamp float64 `json:"timestamp"` // seconds
	Data      struct {
		To   string `json:"to"`
		From string `json:"from"`
	} `json:"data"`
}

type recordingParser struct{}

func newRecordingParser() *recordingParser {
	return &recordingParser{}
}

// ParseBreadcrumbs extracts navigation breadcrumbs from downloaded recording
// segments, ordered by time. IDs are stable for a given replay and position.
func (p *recordingParser) ParseBreadcrumbs(replayID string, body []byte) ([]domain.Breadcrumb, error) {
	var segments [][]rrwebEvent
	if err := json.Unmarshal(body, &segments); err != nil {
		return nil, fmt.Errorf("failed to decode recording segments: %w", err)
	}

	crumbs := make([]domain.Breadcrumb, 0)
	skipped := 0

	for _, events := range segments {
		for _, event := range events {
			if event.Type != rrwebCustomEvent {
				continue
			}

			var custom customEventData
			if err := json.Unmarshal(event.Data, &custom); err != nil || custom.Tag != "breadcrumb" {
				continue
			}

			var payload breadcrumbPayload
			if err := json.Unmarshal(custom.Payload, &payload); err != nil {
				skipped++
				continue
			}

			if !domain.IsNavigation(payload.Category) {
				continue
			}

			timestamp := event.Timestamp
			if payload.Timestamp > 0 {
				timestamp = int64(math.Round(payload.Timestamp * 1000))
			}

			crumbs = append(crumbs, domain.Breadcrumb{
				Type:      payload.Type,
				Category:  payload.Category,
				Timestamp: timestamp,
				Data: domain.BreadcrumbData{
					To:   payload.Data.To,
					From: payload.Data.From,
				},
			})
		}
	}

	if skipped > 0 {
		log.Debugf("Skipped %d malformed breadcrumbs in replay %s", skipped, replayID)
	}

	slices.SortStableFunc(crumbs, func(a, b domain.Breadcrumb) int {
		switch {
		case a.Timestamp < b.Timestamp:
			return -1
		case a.Timestamp > b.Timestamp:
			return 1
		default:
			return 0
		}
	})

	for i := range crumbs {
		crumbs[i].ID = crumbID(replayID, i)
	}

	return crumbs, nil
}

func crumbID(replayID string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(replayID+"/"+strconv.Itoa(index))).String()
}
