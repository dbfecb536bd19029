package conversation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

// ValidationRules bound message content.
type ValidationRules struct {
	MaxBodyLength      int
	MaxAttachments     int
	MaxAttachmentBytes int64
	AllowedMediaTypes  []string
}

// MessageValidator checks message content before anything is persisted.
type MessageValidator struct {
	rules    ValidationRules
	validate *validator.Validate
}

// NewMessageValidator creates a validator for the given rules.
func NewMessageValidator(rules ValidationRules) *MessageValidator {
	return &MessageValidator{
		rules:    rules,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate returns a VALIDATION platform error describing the first problem found.
func (v *MessageValidator) Validate(ctx context.Context, body string, attachments []Attachment) error {
	if strings.TrimSpace(body) == "" && len(attachments) == 0 {
		return errValidation(ctx, "message must have a body or at least one attachment", nil)
	}
	if v.rules.MaxBodyLength > 0 && utf8.RuneCountInString(body) > v.rules.MaxBodyLength {
		return errValidation(ctx, fmt.Sprintf("message body exceeds %d characters", v.rules.MaxBodyLength), nil)
	}
	if v.rules.MaxAttachments > 0 && len(attachments) > v.rules.MaxAttachments {
		return errValidation(ctx, fmt.Sprintf("message has more than %d attachments", v.rules.MaxAttachments), nil)
	}

	for i := range attachments {
		a := &attachments[i]
		if err := v.validate.StructCtx(ctx, a); err != nil {
			return errValidation(ctx, fmt.Sprintf("attachment %d is invalid", i), err)
		}
		if v.rules.MaxAttachmentBytes > 0 && a.Size > v.rules.MaxAttachmentBytes {
			return errValidation(ctx, fmt.Sprintf("attachment %d exceeds %d bytes", i, v.rules.MaxAttachmentBytes), nil)
		}
		canonical, ok := v.allowedMediaType(a.MediaType)
		if !ok {
			return errValidation(ctx, fmt.Sprintf("attachment %d has disallowed media type %q", i, a.MediaType), nil)
		}
		a.MediaType = canonical
	}
	return nil
}

func (v *MessageValidator) allowedMediaType(mediaType string) (string, bool) {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	mime := mimetype.Lookup(mediaType)
	if mime == nil {
		return "", false
	}
	for _, allowed := range v.rules.AllowedMediaTypes {
		if mime.Is(strings.TrimSpace(allowed)) {
			return mediaType, true
		}
	}
	return "", false
}
