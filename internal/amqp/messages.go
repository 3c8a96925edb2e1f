package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrMissingBatchID = errors.New("message has no batch id")

// BatchIngestedMessage announces a committed batch. It carries only the
// batch id; consumers read the rows from the database.
type BatchIngestedMessage struct {
	BatchID   string    `json:"batch_id"`
	RowCount  int       `json:"row_count"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBatchIngestedMessage(batchID string, rowCount int) *BatchIngestedMessage {
	return &BatchIngestedMessage{
		BatchID:   batchID,
		RowCount:  rowCount,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *BatchIngestedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BatchIngestedMessageFromJSON decodes and validates a message.
func BatchIngestedMessageFromJSON(data []byte) (*BatchIngestedMessage, error) {
	var msg BatchIngestedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.BatchID == "" {
		return nil, ErrMissingBatchID
	}
	return &msg, nil
}
