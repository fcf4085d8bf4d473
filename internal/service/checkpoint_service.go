package service

import (
	"context"
	"encoding/json"
	"time"

	"crewtalk-be/internal/dto"
	"crewtalk-be/internal/engine"
	"crewtalk-be/internal/entity"
	"crewtalk-be/internal/pkg/logger"
	"crewtalk-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

// notepadCheckpointer is the engine-facing side of the checkpoint pipeline:
// it turns a notepad mutation into a message on the checkpoint topic.
type notepadCheckpointer struct {
	publisher IPublisherService
}

func NewNotepadCheckpointer(publisher IPublisherService) engine.NotepadCheckpointer {
	return &notepadCheckpointer{publisher: publisher}
}

func (c *notepadCheckpointer) Checkpoint(sessionId uuid.UUID, content, updatedBy string) error {
	payload, err := json.Marshal(dto.NotepadCheckpointMessage{
		SessionId: sessionId,
		Content:   content,
		UpdatedBy: updatedBy,
	})
	if err != nil {
		return err
	}
	return c.publisher.Publish(context.Background(), payload)
}

// ICheckpointService consumes the checkpoint topic and appends durable
// notepad snapshots. The live notepad stays with the session engine; this
// worker only writes history.
type ICheckpointService interface {
	Consume(ctx context.Context) error
}

type checkpointService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
	logger     logger.ILogger
}

func NewCheckpointService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
	log logger.ILogger,
) ICheckpointService {
	return &checkpointService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
		logger:     log,
	}
}

func (cs *checkpointService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *checkpointService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.NotepadCheckpointMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("CheckpointService", "Failed to unmarshal checkpoint message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // malformed messages are not retriable
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)
	snapshot := &entity.NotepadSnapshot{
		Id:        uuid.New(),
		SessionId: payload.SessionId,
		Content:   payload.Content,
		UpdatedBy: payload.UpdatedBy,
		CreatedAt: time.Now(),
	}
	if err := uow.NotepadRepository().CreateSnapshot(ctx, snapshot); err != nil {
		cs.logger.Error("CheckpointService", "Failed to persist notepad snapshot", map[string]interface{}{
			"session_id": payload.SessionId.String(),
			"error":      err.Error(),
		})
		msg.Nack()
		return
	}

	cs.logger.Debug("CheckpointService", "Notepad snapshot persisted", map[string]interface{}{
		"session_id": payload.SessionId.String(),
	})
	msg.Ack()
}
