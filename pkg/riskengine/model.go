package riskengine

const (
	DecisionApprove = "approve"
	DecisionDecline = "decline"
)

type AssessRequest struct {
	UserID     string            `json:"user_id"`
	ExternalID string            `json:"external_id"`
	Provider   string            `json:"provider"`
	Direction  string            `json:"direction"`
	Amount     string            `json:"amount"`
	Asset      string            `json:"asset"`
	Fields     map[string]string `json:"fields,omitempty"`
}

type AssessResponse struct {
	Decision   string `json:"decision"`
	ReasonCode string `json:"reason_code,omitempty"`
}
