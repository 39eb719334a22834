package protocol

// CommandRequest is the body of POST /admin/v1/command.
type CommandRequest struct {
	Kind    string     `json:"kind"`
	Subject uint32     `json:"subject"`
	Target  uint32     `json:"target,omitempty"`
	Pos     [3]float64 `json:"pos,omitempty"`
	Amount  float64    `json:"amount,omitempty"`
	Door    int        `json:"door,omitempty"`
}

// CommandResponse reports whether the command was queued. World-side
// rejections surface later in the tick log and as REJECT events.
type CommandResponse struct {
	Accepted bool   `json:"accepted"`
	Tick     uint64 `json:"tick"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// COMMAND (client -> server) on the command WS.
type CommandMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// ID is echoed back in the RESULT.
	ID string `json:"id,omitempty"`
	CommandRequest
}

// RESULT (server -> client).
type ResultMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id,omitempty"`
	CommandResponse
}
