// Package ingest accepts new messages: it authorizes the author, stores any
// attachment, persists the message and announces it on the live channel.
package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/aryamantandon18/connectly/internal/apperr"
	"github.com/aryamantandon18/connectly/internal/logging"
	"github.com/aryamantandon18/connectly/internal/metrics"
	"github.com/aryamantandon18/connectly/internal/models"
	"github.com/aryamantandon18/connectly/internal/store"
	"github.com/aryamantandon18/connectly/internal/upload"

	"github.com/rs/zerolog"
)

// MessageStore is the subset of *store.Store the service writes through.
type MessageStore interface {
	FindProfile(ctx context.Context, id string) (*models.Profile, error)
	ResolveMember(ctx context.Context, c models.Container, profileID string) (*models.Member, error)
	Append(ctx context.Context, c models.Container, member *models.Member, content string, fileURL *string) (models.ChatMessage, error)
}

// Publisher delivers an event to live channel subscribers. *ws.Hub
// satisfies it.
type Publisher interface {
	Publish(topic string, payload any) error
}

type Request struct {
	ProfileID  string
	Container  models.Container
	Content    string
	// Attachment is the only source of a message's file URL: the URL
	// stored is the one the uploader returns.
	Attachment *upload.File
}

type Service struct {
	store     MessageStore
	uploader  upload.Uploader
	publisher Publisher
	log       zerolog.Logger
}

func New(s MessageStore, u upload.Uploader, p Publisher) *Service {
	return &Service{store: s, uploader: u, publisher: p, log: logging.With("ingest")}
}

// Handle stores req as a new message and returns it. The live channel
// announcement is best effort: the message is returned even when nobody
// could be told about it.
func (s *Service) Handle(ctx context.Context, req Request) (msg models.ChatMessage, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = apperr.KindOf(err).String()
		}
		metrics.MessagesIngested.WithLabelValues(string(req.Container.Kind), outcome).Inc()
	}()

	if req.ProfileID == "" {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	if _, err := s.store.FindProfile(ctx, req.ProfileID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Unauthorized("Unauthorized")
		}
		return nil, apperr.Wrap(apperr.KindInternal, "failed to find profile", err)
	}

	if err := validateContainer(req.Container); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" && req.Attachment == nil {
		return nil, apperr.BadRequest("Content missing")
	}

	member, err := s.store.ResolveMember(ctx, req.Container, req.ProfileID)
	switch {
	case errors.Is(err, store.ErrNotMember):
		return nil, apperr.Wrap(apperr.KindUnauthorized, "Member not found", err)
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.Wrap(apperr.KindNotFound, containerLabel(req.Container)+" not found", err)
	case err != nil:
		return nil, apperr.Wrap(apperr.KindInternal, "failed to resolve member", err)
	}

	var fileURL *string
	if req.Attachment != nil {
		url, err := s.uploader.Upload(ctx, *req.Attachment)
		if err != nil {
			s.log.Error().Err(err).Str("file", req.Attachment.Name).Msg("attachment upload failed")
			return nil, apperr.Wrap(apperr.KindUpload, "file upload failed", err)
		}
		fileURL = &url
	}

	msg, err = s.store.Append(ctx, req.Container, member, req.Content, fileURL)
	switch {
	case errors.Is(err, store.ErrValidation):
		return nil, apperr.Wrap(apperr.KindBadRequest, "Content missing", err)
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.Wrap(apperr.KindNotFound, containerLabel(req.Container)+" not found", err)
	case err != nil:
		return nil, apperr.Wrap(apperr.KindInternal, "failed to store message", err)
	}

	topic := req.Container.TopicKey()
	if err := s.publisher.Publish(topic, msg); err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Str("message", msg.MessageID()).Msg("failed to publish message")
	}
	return msg, nil
}

func validateContainer(c models.Container) error {
	switch c.Kind {
	case models.KindChannel:
		if c.ServerID == "" {
			return apperr.BadRequest("Server ID missing")
		}
		if c.ID == "" {
			return apperr.BadRequest("Channel ID missing")
		}
	case models.KindConversation:
		if c.ID == "" {
			return apperr.BadRequest("Conversation ID missing")
		}
	default:
		return apperr.BadRequest("Container missing")
	}
	return nil
}

func containerLabel(c models.Container) string {
	if c.Kind == models.KindConversation {
		return "Conversation"
	}
	return "Channel"
}
