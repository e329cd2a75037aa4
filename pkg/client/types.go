package client

// ServiceStatus is the state of one service as reported by a running
// local-compose instance.
type ServiceStatus struct {
	Name         string `json:"name"`
	Color        string `json:"color,omitempty"`
	Running      bool   `json:"running"`
	Started      bool   `json:"started"`
	Stopped      bool   `json:"stopped"`
	NeedsRestart bool   `json:"needs_restart"`
	PID          *int   `json:"pid,omitempty"`
	ReturnCode   *int   `json:"return_code,omitempty"`
	Runs         int    `json:"runs"`
	Restarts     int    `json:"restarts"`
}

// State is a one-word summary of the status.
func (s ServiceStatus) State() string {
	switch {
	case s.Running:
		return "running"
	case s.NeedsRestart:
		return "restarting"
	case s.Stopped:
		return "stopped"
	case s.Started:
		return "starting"
	}
	return "pending"
}

// ErrorResponse represents an error response from the API
type ErrorResponse struct {
	Error string `json:"error"`
}
