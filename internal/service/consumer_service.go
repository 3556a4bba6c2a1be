package service

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/meownm/ai-rag-sub000/internal/dto"
	"github.com/meownm/ai-rag-sub000/internal/entity"
	"github.com/meownm/ai-rag-sub000/internal/repository/unitofwork"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService persists retrieval traces published by the request
// path. Trace writes never block or fail a query.
type consumerService struct {
	pubSub     *gochannel.GoChannel
	topicName  string
	uowFactory unitofwork.RepositoryFactory
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	uowFactory unitofwork.RepositoryFactory,
) IConsumerService {
	return &consumerService{
		pubSub:     pubSub,
		topicName:  topicName,
		uowFactory: uowFactory,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
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

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishTraceMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal trace message: %v", err)
		msg.Ack() // Ack invalid messages to prevent infinite retry
		return
	}

	uow := cs.uowFactory.NewUnitOfWork(ctx)

	trace := &entity.RetrievalTrace{
		Id:             payload.TraceId,
		TenantId:       payload.TenantId,
		ConversationId: payload.ConversationId,
		Query:          payload.Query,
		Verdict:        payload.Verdict,
		Confidence:     payload.Confidence,
		UsedChunkIds:   payload.UsedChunkIds,
		Payload:        payload.Payload,
	}
	if err := uow.TraceRepository().Create(ctx, trace); err != nil {
		log.Printf("[ERROR] Failed to persist trace %s: %v", payload.TraceId, err)
		msg.Nack() // Nack for retriable errors
		return
	}

	log.Printf("[INFO] Persisted retrieval trace %s (verdict=%s)", payload.TraceId, payload.Verdict)
	msg.Ack()
}
