package channel

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/sharetube/watchparty/internal/domain"
)

const (
	maxNameLength        = 64
	maxDisplayNameLength = 32
	maxVideoRefLength    = 2048
	maxTextLength        = 4096
	maxAttachmentRef     = 1024
	maxClientMessageID   = 64
)

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %w", domain.ErrValidation, err)
}

func validateCreateChannel(params *CreateChannelParams) error {
	return wrapValidation(validation.ValidateStruct(params,
		validation.Field(&params.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&params.DisplayName, validation.Required, validation.RuneLength(1, maxDisplayNameLength)),
	))
}

func validateJoinChannel(params *JoinChannelParams) error {
	return wrapValidation(validation.ValidateStruct(params,
		validation.Field(&params.ChannelID, validation.Required),
		validation.Field(&params.DisplayName, validation.Required, validation.RuneLength(1, maxDisplayNameLength)),
	))
}

func validatePublishPlayback(params *PublishPlaybackParams) error {
	if params.VideoRef == nil && params.Playing == nil && params.PositionSeconds == nil {
		return fmt.Errorf("%w: empty playback update", domain.ErrValidation)
	}

	return wrapValidation(validation.ValidateStruct(params,
		validation.Field(&params.VideoRef, validation.NilOrNotEmpty, validation.RuneLength(1, maxVideoRefLength)),
		validation.Field(&params.PositionSeconds, validation.Min(0.0)),
	))
}

func validateAppendMessage(params *AppendMessageParams) error {
	if (params.Text == nil || *params.Text == "") && params.Attachment == nil {
		return fmt.Errorf("%w: message needs text or an attachment", domain.ErrValidation)
	}

	if err := validation.ValidateStruct(params,
		validation.Field(&params.Text, validation.RuneLength(0, maxTextLength)),
		validation.Field(&params.ClientMessageID, validation.Length(0, maxClientMessageID)),
	); err != nil {
		return wrapValidation(err)
	}

	if a := params.Attachment; a != nil {
		return wrapValidation(validation.ValidateStruct(a,
			validation.Field(&a.Ref, validation.Required, validation.Length(1, maxAttachmentRef)),
			validation.Field(&a.Kind, validation.Required, validation.By(func(value interface{}) error {
				if !value.(domain.AttachmentKind).Valid() {
					return validation.NewError("validation_attachment_kind", "must be one of image, video, audio, file")
				}

				return nil
			})),
		))
	}

	return nil
}
