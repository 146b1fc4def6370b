package remote

const (
	// EndpointHeartbeat receives periodic heartbeats and answers with the access state.
	EndpointHeartbeat = "client/heartbeat"
	// EndpointStatus receives free-form status reports.
	EndpointStatus = "client/status"
)

// HeartbeatRequest is the body of a heartbeat.
type HeartbeatRequest struct {
	HostVersion    string `json:"odoo_version"`
	AddonVersion   string `json:"addon_version"`
	Timestamp      string `json:"timestamp"`
	UsersCount     int    `json:"users_count"`
	CompaniesCount int    `json:"companies_count"`
}

// HeartbeatResponse is the access state returned by the remote authority.
type HeartbeatResponse struct {
	Success        bool   `json:"success"`
	Blocked        bool   `json:"blocked"`
	BlockReason    string `json:"block_reason"`
	ShowWarning    bool   `json:"show_warning"`
	WarningMessage string `json:"warning_message"`
	PaymentStatus  string `json:"payment_status"`
}
