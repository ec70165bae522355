package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/lamms/attendance_backend/internal/attendance"
	"github.com/lamms/attendance_backend/internal/models"
)

func TestPublishNeverBlocks(t *testing.T) {
	h := NewAttendanceHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < cap(h.broadcast)+10; i++ {
			h.Publish(attendance.Notification{Type: attendance.NotifyMarked})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a hub that is not running")
	}

	var nilHub *AttendanceHub
	nilHub.Publish(attendance.Notification{})
}

func TestHubScopesBySection(t *testing.T) {
	h := NewAttendanceHub()
	go h.Run()

	client := &attendanceClient{
		hub:             h,
		send:            make(chan []byte, 4),
		allowedSections: map[uint]struct{}{7: {}},
	}
	h.register <- client

	h.Publish(attendance.Notification{Type: attendance.NotifyMarked, Session: models.AttendanceSession{ID: "other", SectionIDRef: 8}})
	h.Publish(attendance.Notification{
		Type:       attendance.NotifyCompleted,
		Session:    models.AttendanceSession{ID: "mine", SectionIDRef: 7, Status: models.SessionCompleted, Version: 1},
		StudentIDs: []uint{3},
	})

	select {
	case raw := <-client.send:
		var p AttendancePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Fatal(err)
		}
		if p.SessionID != "mine" || p.Type != attendance.NotifyCompleted || p.SectionID != 7 {
			t.Fatalf("payload = %+v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no payload delivered")
	}
	select {
	case raw := <-client.send:
		t.Fatalf("unexpected second payload %s", raw)
	case <-time.After(50 * time.Millisecond):
	}
}
