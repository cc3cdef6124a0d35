package controller

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"messenger-core/errs"
	"messenger-core/messenger"
	"messenger-core/middleware"
	"messenger-core/model"
	"messenger-core/storage"
	"messenger-core/utils"
)

const (
	sniffLen       = 512
	cleanupTimeout = 10 * time.Second
)

// Messenger serves the HTTP fallback of the realtime protocol.
type Messenger struct {
	svc           *messenger.Service
	files         storage.Store
	voiceMaxBytes int64
	log           *zap.Logger
}

func NewMessenger(svc *messenger.Service, files storage.Store, voiceMaxBytes int64, log *zap.Logger) *Messenger {
	return &Messenger{svc: svc, files: files, voiceMaxBytes: voiceMaxBytes, log: log}
}

func (h *Messenger) Conversations(c *fiber.Ctx) error {
	list, err := h.svc.Conversations(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "", list)
}

func (h *Messenger) History(c *fiber.Ctx) error {
	page, err := h.svc.History(c.UserContext(), middleware.UserID(c), c.Params("otherUserId"), messenger.HistoryQuery{
		Limit:    c.QueryInt("limit"),
		Before:   c.Query("before"),
		BeforeID: c.Query("beforeId"),
	})
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "", page)
}

func (h *Messenger) Send(c *fiber.Ctx) error {
	var in messenger.SendInput
	if err := c.BodyParser(&in); err != nil {
		return utils.Error(c, errs.ErrMalformedRequest)
	}
	v, err := h.svc.Send(c.UserContext(), middleware.UserID(c), in, messenger.OriginHTTP)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, "Message sent", v)
}

// SendVoice uploads an audio file and sends it as a voice message. The upload
// is removed again when the send is refused.
func (h *Messenger) SendVoice(c *fiber.Ctx) error {
	userID := middleware.UserID(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, errs.ErrMissingVoiceFile)
	}
	if h.voiceMaxBytes > 0 && fh.Size > h.voiceMaxBytes {
		return utils.Error(c, errs.ErrVoiceTooLarge)
	}

	duration, err := parseDuration(c.FormValue("duration"))
	if err != nil {
		return utils.Error(c, err)
	}

	f, err := fh.Open()
	if err != nil {
		return utils.Error(c, errs.Wrap(errs.CodeInternal, "open upload", err))
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return utils.Error(c, errs.ErrMissingVoiceFile)
	}
	head = head[:n]
	contentType, ok := audioType(fh.Header.Get(fiber.HeaderContentType), head)
	if !ok {
		return utils.Error(c, errs.ErrInvalidAudio)
	}

	receiverID := c.FormValue("receiverId")
	switch {
	case receiverID == "":
		return utils.Error(c, errs.ErrMissingReceiver)
	case receiverID == userID:
		return utils.Error(c, errs.ErrSelfMessage)
	}
	in := voiceInput(c, duration)
	if in.Type == model.KindEncryptedVoice && in.Nonce == "" {
		return utils.Error(c, errs.ErrMalformedEncrypted)
	}

	ctx := c.UserContext()
	key := storage.VoiceKey(userID, fh.Filename)
	url, err := h.files.Upload(ctx, key, contentType, io.MultiReader(bytes.NewReader(head), f))
	if err != nil {
		h.log.Error("voice upload failed", zap.String("user", userID), zap.Error(err))
		return utils.Error(c, errs.Wrap(errs.CodeInternal, "upload voice", err))
	}
	in.URL = url
	in.StorageKey = key

	v, err := h.svc.Send(ctx, userID, messenger.SendInput{ReceiverID: receiverID, Payload: in}, messenger.OriginHTTP)
	if err != nil {
		h.discard(key)
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusCreated, "Voice message sent", v)
}

func (h *Messenger) discard(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := h.files.Delete(ctx, key); err != nil {
		h.log.Warn("orphaned voice upload", zap.String("key", key), zap.Error(err))
	}
}

func (h *Messenger) Delete(c *fiber.Ctx) error {
	messageID := c.Params("messageId")
	if err := h.svc.DeleteMessage(c.UserContext(), middleware.UserID(c), messageID, messenger.OriginHTTP); err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "Message deleted", messenger.MessageDeleted{MessageID: messageID})
}

func (h *Messenger) DeleteConversation(c *fiber.Ctx) error {
	n, err := h.svc.DeleteConversation(c.UserContext(), middleware.UserID(c), c.Params("otherUserId"), messenger.OriginHTTP)
	if err != nil {
		return utils.Error(c, err)
	}
	return utils.Success(c, fiber.StatusOK, "Conversation deleted", fiber.Map{"deleted": n})
}

// voiceInput builds the payload from the form, without its location. A nonce
// or ciphertext selects the encrypted variant.
func voiceInput(c *fiber.Ctx, duration float64) *model.PayloadInput {
	in := &model.PayloadInput{Type: model.KindVoice, Duration: duration}
	if ct, nonce := c.FormValue("ciphertext"), c.FormValue("nonce"); ct != "" || nonce != "" {
		in.Type = model.KindEncryptedVoice
		in.Ciphertext = ct
		in.Nonce = nonce
		in.SenderPublicKey = c.FormValue("senderPublicKey")
	}
	return in
}

func parseDuration(raw string) (float64, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := strconv.ParseFloat(raw, 64)
	if err != nil || d < 0 {
		return 0, errs.ErrInvalidDuration
	}
	return d, nil
}

// audioType accepts a declared audio/* type unless the content sniffs as
// something else entirely, and otherwise falls back to the sniffed type.
func audioType(declared string, head []byte) (string, bool) {
	if len(head) == 0 {
		return "", false
	}
	sniffed := http.DetectContentType(head)
	if strings.HasPrefix(sniffed, "text/") || strings.HasPrefix(sniffed, "image/") {
		return "", false
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if strings.HasPrefix(declared, "audio/") {
		return declared, true
	}
	if strings.HasPrefix(sniffed, "audio/") || sniffed == "application/ogg" {
		return sniffed, true
	}
	return "", false
}
