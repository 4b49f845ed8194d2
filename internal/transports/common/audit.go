package common

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"embark/internal/storage"
)

// HistorySink записывает выполненные команды.
type HistorySink interface {
	Write(ctx context.Context, rec storage.CommandRecord) error
}

func newRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("req-%d", time.Now().UnixNano())
	}
	return id.String()
}
