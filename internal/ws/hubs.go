package ws

type Hubs struct {
	Attendance *AttendanceHub
}

func NewHubs() *Hubs {
	return &Hubs{
		Attendance: NewAttendanceHub(),
	}
}

// Start runs every hub loop in its own goroutine.
func (h *Hubs) Start() {
	if h == nil {
		return
	}
	if h.Attendance != nil {
		go h.Attendance.Run()
	}
}
