package queue

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const TypeDocumentProcess = "document:process"

type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
}

func NewDocumentProcessTask(documentID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(DocumentProcessPayload{DocumentID: documentID.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentProcess, data), nil
}

// ParseDocumentProcessPayload returns the document id carried by a task.
func ParseDocumentProcessPayload(data []byte) (uuid.UUID, error) {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return uuid.Nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	id, err := uuid.Parse(payload.DocumentID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse document ID: %w", err)
	}
	return id, nil
}
