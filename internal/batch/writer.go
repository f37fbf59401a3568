package batch

import (
	"context"

	"github.com/rohankatakam/gitranker/internal/models"
)

// BatchSaver is the store method UserWriter needs
type BatchSaver interface {
	SaveBatch(ctx context.Context, users []*models.User, logs []*models.ActivityLog) error
}

// UserWriter saves updated users and their snapshots in one transaction
type UserWriter struct {
	store BatchSaver
}

func NewUserWriter(store BatchSaver) *UserWriter {
	return &UserWriter{store: store}
}

func (w *UserWriter) Write(ctx context.Context, items []*Item) error {
	users := make([]*models.User, 0, len(items))
	var logs []*models.ActivityLog
	for _, item := range items {
		users = append(users, item.User)
		logs = append(logs, item.Logs...)
	}
	return w.store.SaveBatch(ctx, users, logs)
}
