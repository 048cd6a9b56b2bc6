package rest

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/wa-platform/core/pkg/apperror"
)

func validateStruct(ctx context.Context, req any, fields ...*validation.FieldRules) {
	rules := make([]*validation.FieldRules, 0, len(fields))
	rules = append(rules, fields...)
	if err := validation.ValidateStructWithContext(ctx, req, rules...); err != nil {
		panic(apperror.Validation(err.Error()))
	}
}

func (r *createBroadcastRequest) validate(ctx context.Context) {
	validateStruct(ctx, r,
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Template, validation.Required),
		validation.Field(&r.Recipients, validation.Required, validation.Length(1, 0)),
	)
	if r.Template.Name == "" {
		panic(apperror.Validation("template.name is required"))
	}
	for _, rec := range r.Recipients {
		if rec.ContactID == "" && rec.Phone == "" {
			panic(apperror.Validation("each recipient requires contact_id or phone"))
		}
	}
}

func (r *sendRequest) validate(ctx context.Context) {
	validateStruct(ctx, r,
		validation.Field(&r.ContactID, validation.Required),
		validation.Field(&r.Text, validation.Required),
	)
}

func (r *sendTemplateRequest) validate(ctx context.Context) {
	validateStruct(ctx, r,
		validation.Field(&r.ContactID, validation.Required),
		validation.Field(&r.Name, validation.Required),
		validation.Field(&r.Language, validation.Required),
	)
}
