package queue

import "encoding/json"

// MessageVersion is the current Message schema version.
const MessageVersion = 1

// Message asks a worker to run one workflow against a staged CSV.
// Empty optional fields fall back to the worker's configuration.
type Message struct {
	RequestID      string `json:"requestId"`
	AnalysisID     string `json:"analysisId"`
	CSVKey         string `json:"csvKey"`
	Commodity      string `json:"commodity,omitempty"`
	ListNamePrefix string `json:"listNamePrefix,omitempty"`
	UserEmail      string `json:"userEmail,omitempty"`
	EnqueuedAt     string `json:"enqueuedAt"`
	Version        int    `json:"version"`
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
