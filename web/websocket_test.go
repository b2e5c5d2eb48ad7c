package web

import (
	"testing"

	"github.com/google/uuid"

	"team-presence/pkg/common"
)

func TestSubscribeFiltersByMatch(t *testing.T) {
	c := &Client{hub: NewHub(common.NopLogger{})}
	watched, other := uuid.New().String(), uuid.New().String()

	c.handleMessage([]byte(`{"type":"subscribe","matchIds":["` + watched + `","not-a-uuid"]}`))

	if !c.shouldReceive(&WSMessage{EventType: "match.updated", MatchID: watched}) {
		t.Error("Expected event for the subscribed match")
	}
	if c.shouldReceive(&WSMessage{EventType: "match.updated", MatchID: other}) {
		t.Error("Received event for another match")
	}
}

func TestSubscribeWithOnlyInvalidIDsIsRejected(t *testing.T) {
	c := &Client{hub: NewHub(common.NopLogger{})}
	watched, other := uuid.New().String(), uuid.New().String()

	c.handleMessage([]byte(`{"type":"subscribe","matchIds":["` + watched + `"]}`))
	c.handleMessage([]byte(`{"type":"subscribe","matchIds":["bad","also-bad"]}`))

	if c.shouldReceive(&WSMessage{EventType: "match.updated", MatchID: other}) {
		t.Error("Invalid subscribe widened the filter to every match")
	}
	if !c.shouldReceive(&WSMessage{EventType: "match.updated", MatchID: watched}) {
		t.Error("Previous subscription was lost")
	}

	fresh := &Client{hub: NewHub(common.NopLogger{})}
	fresh.handleMessage([]byte(`{"type":"subscribe","eventTypes":["match.created"],"matchIds":["bad"]}`))
	if !fresh.shouldReceive(&WSMessage{EventType: "match.updated", MatchID: other}) {
		t.Error("Rejected subscribe should leave the client unfiltered")
	}
}
