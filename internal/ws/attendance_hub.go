package ws

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lamms/attendance_backend/internal/attendance"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	sendBufferSize = 256
)

// AttendancePayload is pushed to teacher/admin dashboards when a session changes.
type AttendancePayload struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	SectionID   uint      `json:"section_id"`
	TeacherID   uint      `json:"teacher_id"`
	SubjectID   *uint     `json:"subject_id,omitempty"`
	SessionDate string    `json:"session_date"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	StudentIDs  []uint    `json:"student_ids,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

type attendanceMessage struct {
	sectionID uint
	payload   []byte
}

// AttendanceHub fans session changes out to websocket clients scoped by section.
type AttendanceHub struct {
	register   chan *attendanceClient
	unregister chan *attendanceClient
	broadcast  chan attendanceMessage
	clients    map[*attendanceClient]struct{}
}

func NewAttendanceHub() *AttendanceHub {
	return &AttendanceHub{
		register:   make(chan *attendanceClient),
		unregister: make(chan *attendanceClient),
		broadcast:  make(chan attendanceMessage, 256),
		clients:    make(map[*attendanceClient]struct{}),
	}
}

func (h *AttendanceHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				client.conn.Close()
			}
		case msg := <-h.broadcast:
			for client := range h.clients {
				if !client.allowAll {
					if _, ok := client.allowedSections[msg.sectionID]; !ok {
						continue
					}
				}
				select {
				case client.send <- msg.payload:
				default:
					delete(h.clients, client)
					close(client.send)
					client.conn.Close()
				}
			}
		}
	}
}

// Publish implements attendance.Notifier. It never blocks the caller:
// when the hub is backed up the event is dropped.
func (h *AttendanceHub) Publish(n attendance.Notification) {
	if h == nil {
		return
	}
	data, err := json.Marshal(AttendancePayload{
		Type:        n.Type,
		SessionID:   n.Session.ID,
		SectionID:   n.Session.SectionIDRef,
		TeacherID:   n.Session.TeacherIDRef,
		SubjectID:   n.Session.SubjectIDRef,
		SessionDate: n.Session.SessionDate,
		Status:      n.Session.Status,
		Version:     n.Session.Version,
		StudentIDs:  n.StudentIDs,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("ws: failed to marshal payload: %v", err)
		return
	}
	select {
	case h.broadcast <- attendanceMessage{sectionID: n.Session.SectionIDRef, payload: data}:
	default:
		log.Printf("ws: attendance hub busy, dropped %s for session %s", n.Type, n.Session.ID)
	}
}

type attendanceClient struct {
	hub             *AttendanceHub
	conn            *websocket.Conn
	send            chan []byte
	allowedSections map[uint]struct{}
	allowAll        bool
}

func newAttendanceClient(hub *AttendanceHub, conn *websocket.Conn, allowed map[uint]struct{}, allowAll bool) *attendanceClient {
	return &attendanceClient{
		hub:             hub,
		conn:            conn,
		send:            make(chan []byte, sendBufferSize),
		allowedSections: allowed,
		allowAll:        allowAll,
	}
}

func (c *attendanceClient) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *attendanceClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
