package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/aryamantandon18/connectly/internal/apperr"
	"github.com/aryamantandon18/connectly/internal/http/middleware"
	"github.com/aryamantandon18/connectly/internal/ingest"
	"github.com/aryamantandon18/connectly/internal/models"
	"github.com/aryamantandon18/connectly/internal/store"
	"github.com/aryamantandon18/connectly/internal/upload"

	"github.com/gin-gonic/gin"
)

// multipart overhead allowed on top of the attachment itself
const formSlack = 1 << 20

type MessageHandler struct {
	Store          *store.Store
	Ingest         *ingest.Service
	MaxUploadBytes int64
}

// ListChannelMessages serves GET /api/messages?channelId=&cursor=.
func (h *MessageHandler) ListChannelMessages(c *gin.Context) {
	channelID := c.Query("channelId")
	if channelID == "" {
		respondError(c, apperr.BadRequest("Channel ID missing"))
		return
	}
	h.list(c, models.ChannelContainer("", channelID))
}

// ListDirectMessages serves GET /api/direct-messages?conversationId=&cursor=.
func (h *MessageHandler) ListDirectMessages(c *gin.Context) {
	conversationID := c.Query("conversationId")
	if conversationID == "" {
		respondError(c, apperr.BadRequest("Conversation ID missing"))
		return
	}
	h.list(c, models.ConversationContainer(conversationID))
}

func (h *MessageHandler) list(c *gin.Context, container models.Container) {
	ctx := c.Request.Context()
	profileID := middleware.ProfileID(c)

	if _, err := h.Store.ResolveMember(ctx, container, profileID); err != nil {
		respondError(c, fromStore(err, containerName(container)))
		return
	}

	page, err := h.Store.ListPage(ctx, container, c.Query("cursor"), store.PageSize)
	if err != nil {
		respondError(c, fromStore(err, "Cursor"))
		return
	}
	c.JSON(http.StatusOK, page)
}

// SendChannelMessage serves POST /api/socket/messages?serverId=&channelId=.
func (h *MessageHandler) SendChannelMessage(c *gin.Context) {
	h.send(c, models.ChannelContainer(c.Query("serverId"), c.Query("channelId")))
}

// SendDirectMessage serves POST /api/socket/direct-messages?conversationId=.
func (h *MessageHandler) SendDirectMessage(c *gin.Context) {
	h.send(c, models.ConversationContainer(c.Query("conversationId")))
}

func (h *MessageHandler) send(c *gin.Context, container models.Container) {
	req, closeFile, err := h.readSubmission(c)
	if err != nil {
		respondError(c, err)
		return
	}
	defer closeFile()

	req.ProfileID = middleware.ProfileID(c)
	req.Container = container

	msg, err := h.Ingest.Handle(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

type sendMessageReq struct {
	Content string `json:"content"`
}

// readSubmission accepts either a multipart form (content or caption, plus
// a file under "file" or "fileUrl") or a JSON body. Attachments only arrive
// as uploaded files; a URL supplied by the client is never stored.
func (h *MessageHandler) readSubmission(c *gin.Context) (ingest.Request, func(), error) {
	noop := func() {}

	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var body sendMessageReq
		if err := c.ShouldBindJSON(&body); err != nil && !errors.Is(err, io.EOF) {
			return ingest.Request{}, noop, apperr.Wrap(apperr.KindBadRequest, "invalid body", err)
		}
		return ingest.Request{Content: body.Content}, noop, nil
	}

	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+formSlack)
	}
	if _, err := c.MultipartForm(); err != nil {
		return ingest.Request{}, noop, apperr.Wrap(apperr.KindBadRequest, "invalid form", err)
	}

	req := ingest.Request{Content: c.PostForm("content")}
	if req.Content == "" {
		req.Content = c.PostForm("caption")
	}

	fh, err := formFile(c, "file", "fileUrl")
	if err != nil {
		return ingest.Request{}, noop, err
	}
	if fh == nil {
		return req, noop, nil
	}
	if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
		return ingest.Request{}, noop, apperr.BadRequest(fmt.Sprintf("file exceeds %d bytes", h.MaxUploadBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return ingest.Request{}, noop, apperr.Wrap(apperr.KindBadRequest, "invalid file", err)
	}
	req.Attachment = &upload.File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Reader:      f,
	}
	return req, func() { _ = f.Close() }, nil
}

// formFile returns the first file present under one of names, or nil.
func formFile(c *gin.Context, names ...string) (*multipart.FileHeader, error) {
	for _, name := range names {
		fh, err := c.FormFile(name)
		if err == nil {
			return fh, nil
		}
		if !errors.Is(err, http.ErrMissingFile) {
			return nil, apperr.Wrap(apperr.KindBadRequest, "invalid file", err)
		}
	}
	return nil, nil
}

func containerName(c models.Container) string {
	if c.Kind == models.KindConversation {
		return "Conversation"
	}
	return "Channel"
}
